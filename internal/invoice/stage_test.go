package invoice

import (
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Stage", func() {
	DescribeTable("CanTransition",
		func(mode Mode, from, to Stage, allowed bool) {
			Expect(CanTransition(mode, from, to)).To(Equal(allowed))
		},
		Entry("full: idle to uploading", ModeFull, StageIdle, StageUploading, true),
		Entry("full: uploading to recognizing", ModeFull, StageUploading, StageRecognizing, true),
		Entry("full: recognizing to submitting", ModeFull, StageRecognizing, StageSubmitting, true),
		Entry("full: submitting to complete", ModeFull, StageSubmitting, StageComplete, true),
		Entry("full: skipping upload", ModeFull, StageIdle, StageRecognizing, false),
		Entry("full: recognizing straight to complete", ModeFull, StageRecognizing, StageComplete, false),
		Entry("local: idle to recognizing", ModeLocal, StageIdle, StageRecognizing, true),
		Entry("local: recognizing to complete", ModeLocal, StageRecognizing, StageComplete, true),
		Entry("local: never uploads", ModeLocal, StageIdle, StageUploading, false),
		Entry("local: never submits", ModeLocal, StageRecognizing, StageSubmitting, false),
		Entry("failing from a running stage", ModeFull, StageSubmitting, StageFailed, true),
		Entry("failing from idle", ModeLocal, StageIdle, StageFailed, true),
		Entry("leaving complete", ModeFull, StageComplete, StageFailed, false),
		Entry("leaving failed", ModeFull, StageFailed, StageUploading, false),
	)

	It("encodes by name", func() {
		data, err := json.Marshal(Progress{RunID: "r", Stage: StageRecognizing, Percent: 40})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`{"runId":"r","stage":"recognizing","percent":40}`))
	})
})

var _ = Describe("Run", func() {
	var (
		run    *Run
		events []Progress
		ended  []Stage
	)

	BeforeEach(func() {
		events = nil
		ended = nil
		run = newRun("run-1", ModeFull, func(p Progress) { events = append(events, p) })
		run.onStageEnd = func(s Stage, _ time.Duration) { ended = append(ended, s) }
	})

	It("starts idle without emitting", func() {
		Expect(run.Stage()).To(Equal(StageIdle))
		Expect(events).To(BeEmpty())
	})

	It("emits stage and percent together on each transition", func() {
		Expect(run.advance(StageUploading)).To(Succeed())
		run.report(StageUploading, 40)
		Expect(run.advance(StageRecognizing)).To(Succeed())

		Expect(events).To(Equal([]Progress{
			{RunID: "run-1", Stage: StageUploading, Percent: 0},
			{RunID: "run-1", Stage: StageUploading, Percent: 40},
			{RunID: "run-1", Stage: StageRecognizing, Percent: 0},
		}))
		Expect(run.Percent()).To(BeZero())
	})

	It("rejects illegal transitions", func() {
		Expect(run.advance(StageSubmitting)).To(MatchError(ContainSubstring("illegal stage transition")))
		Expect(run.Stage()).To(Equal(StageIdle))
	})

	It("ignores reports for a stage the run has left", func() {
		Expect(run.advance(StageUploading)).To(Succeed())
		Expect(run.advance(StageRecognizing)).To(Succeed())
		run.report(StageUploading, 90)

		Expect(events).To(HaveLen(2))
		Expect(run.Percent()).To(BeZero())
	})

	It("drops regressions and clamps into range", func() {
		Expect(run.advance(StageUploading)).To(Succeed())
		run.report(StageUploading, 50)
		run.report(StageUploading, 20)
		run.report(StageUploading, 250)
		run.report(StageUploading, 300)

		Expect(events).To(HaveLen(3))
		Expect(events[2].Percent).To(Equal(100.0))
	})

	It("records the failure", func() {
		Expect(run.advance(StageUploading)).To(Succeed())
		cause := errors.New("boom")
		Expect(run.fail(cause)).To(Equal(cause))

		Expect(run.Stage()).To(Equal(StageFailed))
		Expect(run.Err()).To(Equal(cause))
		Expect(ended).To(Equal([]Stage{StageUploading}))
	})

	It("does not leave a terminal stage", func() {
		Expect(run.advance(StageUploading)).To(Succeed())
		Expect(run.fail(errors.New("first"))).To(HaveOccurred())
		Expect(run.advance(StageRecognizing)).NotTo(Succeed())
		Expect(run.Stage()).To(Equal(StageFailed))
	})
})

var _ = Describe("StageOf", func() {
	DescribeTable("maps errors to stages",
		func(err error, expected Stage, ok bool) {
			stage, found := StageOf(err)
			Expect(found).To(Equal(ok))
			Expect(stage).To(Equal(expected))
		},
		Entry("validation", &ValidationError{Reason: "empty"}, StageIdle, true),
		Entry("upload", &UploadError{Err: errors.New("x")}, StageUploading, true),
		Entry("recognition", &RecognitionError{Reason: "timeout"}, StageRecognizing, true),
		Entry("submission", &SubmissionError{Err: errors.New("x")}, StageSubmitting, true),
		Entry("unknown", errors.New("x"), StageFailed, false),
	)
})
