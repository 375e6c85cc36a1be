/*
Copyright 2025 The Strife.ML Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package trainer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	testingclock "k8s.io/utils/clock/testing"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/Strife-AI/Strife.ML/internal/config"
	"github.com/Strife-AI/Strife.ML/internal/logging"
	"github.com/Strife-AI/Strife.ML/internal/metrics"
	"github.com/Strife-AI/Strife.ML/pkg/async"
	"github.com/Strife-AI/Strife.ML/pkg/linear"
	"github.com/Strife-AI/Strife.ML/pkg/model"
	"github.com/Strife-AI/Strife.ML/pkg/rng"
	"github.com/Strife-AI/Strife.ML/pkg/samples"
)

type store = samples.Store[linear.Features, linear.Target, *linear.Features, *linear.Target]

// completions records what the trainer hooks observed.
type completions struct {
	mu        sync.Mutex
	results   []model.TrainingResult
	published []model.Published[*fakeNetwork]
	created   []uint64
	runs      int
}

func (c *completions) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func (c *completions) runBatches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

var _ = Describe("Trainer", func() {
	var (
		logger  logr.Logger
		clk     *testingclock.FakeClock
		queue   *async.WorkQueue
		sched   *async.Scheduler
		cfg     config.TrainerConfig
		network *fakeNetwork
		st      *store
		byKind  *samples.GroupIndex[linear.Features, linear.Target, bool]
		hooks   Hooks[linear.Features, linear.Target, *fakeNetwork]
		seen    *completions
	)

	newTrainer := func() *Trainer[linear.Features, linear.Target, *fakeNetwork] {
		tr, err := New(cfg, network, model.Codec[*fakeNetwork](fakeCodec{}), sched, hooks, logger)
		Expect(err).NotTo(HaveOccurred())
		return tr
	}

	// tick advances the fake clock by one training period and the scheduler to it.
	tick := func() int {
		clk.Step(cfg.Period())
		return sched.Advance(clk.Now())
	}

	BeforeEach(func() {
		logger = logging.NewTestLogger()
		clk = testingclock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
		queue = async.NewWorkQueue(config.WorkQueueConfig{Workers: 2}, logger)
		queue.Start(context.Background())
		DeferCleanup(queue.Shutdown)
		sched = async.NewScheduler(queue, clk, logger)

		cfg = config.TrainerConfig{
			BatchSize:                2,
			SequenceLength:           3,
			TrainsPerSecond:          10,
			MinSamplesBeforeTraining: 4,
		}
		network = newFakeNetwork()

		st = samples.NewStore[linear.Features, linear.Target]("test", rng.New(7))
		byKind = samples.CreateGroupIndex[bool](st).SetSelector(func(s sample) bool { return s.Output.Value >= 0 })

		seen = &completions{}
		hooks = Hooks[linear.Features, linear.Target, *fakeNetwork]{
			SampleSink:       func(s sample) { st.AddSample(s) },
			SequenceSelector: byKind.TryPickRandomSequence,
			OnRunBatch: func(samples.Batch[linear.Features, linear.Target]) {
				seen.mu.Lock()
				defer seen.mu.Unlock()
				seen.runs++
			},
			OnTrainingComplete: func(r model.TrainingResult, p model.Published[*fakeNetwork]) {
				seen.mu.Lock()
				defer seen.mu.Unlock()
				seen.results = append(seen.results, r)
				seen.published = append(seen.published, p)
			},
			OnCreateNewModel: func(p model.Published[*fakeNetwork]) {
				seen.mu.Lock()
				defer seen.mu.Unlock()
				seen.created = append(seen.created, p.Version)
			},
		}
	})

	Context("construction", func() {
		It("should reject an invalid configuration", func() {
			cfg.SequenceLength = 0
			_, err := New(cfg, network, model.Codec[*fakeNetwork](fakeCodec{}), sched, hooks, logger)
			Expect(err).To(MatchError(ContainSubstring("sequenceLength")))
		})

		It("should require a codec and a scheduler", func() {
			_, err := New[linear.Features, linear.Target, *fakeNetwork](cfg, network, nil, sched, hooks, logger)
			Expect(err).To(HaveOccurred())
			_, err = New(cfg, network, model.Codec[*fakeNetwork](fakeCodec{}), nil, hooks, logger)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("AddSample", func() {
		It("should forward samples to the sink and activate at the threshold", func() {
			tr := newTrainer()
			for i := 0; i < 3; i++ {
				tr.AddSample(makeSample(float64(i)))
				Expect(tr.Active()).To(BeFalse())
			}
			tr.AddSample(makeSample(3))
			Expect(tr.Active()).To(BeTrue())
			Expect(tr.TotalSamples()).To(Equal(4))
			Expect(st.Len()).To(Equal(4))
		})

		It("should be active immediately with a zero threshold", func() {
			cfg.MinSamplesBeforeTraining = 0
			tr := newTrainer()
			tr.AddSample(makeSample(1))
			Expect(tr.Active()).To(BeTrue())
		})

		It("should accept samples from many goroutines", func() {
			tr := newTrainer()
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						tr.AddSample(makeSample(float64(i)))
					}
				}()
			}
			wg.Wait()
			Expect(tr.TotalSamples()).To(Equal(400))
			Expect(st.Len()).To(Equal(400))
		})

		It("should leave the sample gauge at the final total after concurrent producers", func() {
			metrics.Register()
			tr := newTrainer()
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						tr.AddSample(makeSample(float64(i)))
					}
				}()
			}
			wg.Wait()

			expected := `
# HELP strifeml_trainer_samples Number of samples received by the trainer.
# TYPE strifeml_trainer_samples gauge
strifeml_trainer_samples 400
`
			Expect(testutil.GatherAndCompare(crmetrics.Registry, strings.NewReader(expected),
				"strifeml_trainer_samples")).To(Succeed())
		})
	})

	Context("TryCreateBatch", func() {
		It("should fill every row with consecutive samples", func() {
			tr := newTrainer()
			for i := 0; i < 10; i++ {
				tr.AddSample(makeSample(float64(i)))
			}
			batch := samples.NewGrid[sample](cfg.BatchSize, cfg.SequenceLength)
			Expect(tr.TryCreateBatch(batch)).To(BeTrue())
			for row := 0; row < batch.Rows(); row++ {
				seq := batch.Row(row)
				for i := 1; i < len(seq); i++ {
					Expect(seq[i].Output.Value).To(Equal(seq[i-1].Output.Value + 1))
				}
			}
		})

		It("should fail without enough history", func() {
			tr := newTrainer()
			tr.AddSample(makeSample(0))
			tr.AddSample(makeSample(1))
			Expect(tr.TryCreateBatch(samples.NewGrid[sample](cfg.BatchSize, cfg.SequenceLength))).To(BeFalse())
		})

		It("should fail without a sequence selector", func() {
			hooks.SequenceSelector = nil
			tr := newTrainer()
			Expect(tr.TryCreateBatch(samples.NewGrid[sample](1, 1))).To(BeFalse())
		})
	})

	Context("when running", func() {
		It("should not train while inactive", func() {
			tr := newTrainer()
			tr.StartRunning()
			Expect(sched.Advance(clk.Now())).To(Equal(1))
			Expect(tick()).To(Equal(1))

			Consistently(seen.runBatches, 50*time.Millisecond).Should(BeZero())
			Expect(tr.Slot().Pending()).To(BeFalse())
		})

		It("should train and publish once active", func() {
			tr := newTrainer()
			for i := 0; i < 10; i++ {
				tr.AddSample(makeSample(float64(i)))
			}
			tr.StartRunning()
			Expect(sched.Advance(clk.Now())).To(Equal(1))

			Eventually(seen.count).Should(Equal(1))
			Expect(network.generation()).To(BeEquivalentTo(1))

			p, ok := tr.Slot().TryClaim()
			Expect(ok).To(BeTrue())
			Expect(p.Version).To(BeEquivalentTo(1))
			Expect(p.Model).NotTo(BeIdenticalTo(network), "published models are decoded copies")
			Expect(p.Model.Generation).To(BeEquivalentTo(1))

			seen.mu.Lock()
			defer seen.mu.Unlock()
			Expect(seen.created).To(Equal([]uint64{1}))
			Expect(seen.results[0].Loss).To(Equal(0.5))
			Expect(seen.published[0].RunID).To(Equal(p.RunID))
		})

		It("should keep training at the configured rate", func() {
			tr := newTrainer()
			for i := 0; i < 10; i++ {
				tr.AddSample(makeSample(float64(i)))
			}
			tr.StartRunning()
			sched.Advance(clk.Now())
			Eventually(seen.count).Should(Equal(1))

			Expect(sched.Advance(clk.Now())).To(BeZero(), "next firing is a period away")
			Expect(tick()).To(Equal(1))
			Eventually(seen.count).Should(Equal(2))
			Expect(tr.Slot().Version()).To(BeEquivalentTo(2))
		})

		It("should skip firings while a training run is in flight", func() {
			gate, started := network.hold()
			tr := newTrainer()
			for i := 0; i < 10; i++ {
				tr.AddSample(makeSample(float64(i)))
			}
			tr.StartRunning()
			sched.Advance(clk.Now())
			Eventually(started).Should(Receive())

			for i := 0; i < 3; i++ {
				Expect(tick()).To(Equal(1))
			}
			Consistently(started, 50*time.Millisecond).ShouldNot(Receive())
			Expect(seen.runBatches()).To(Equal(1))

			close(gate)
			Eventually(seen.count).Should(Equal(1))

			Expect(tick()).To(Equal(1))
			Eventually(seen.count).Should(Equal(2))
		})

		It("should not publish a failed or rejected training run", func() {
			tr := newTrainer()
			for i := 0; i < 10; i++ {
				tr.AddSample(makeSample(float64(i)))
			}
			network.script(model.TrainingResult{}, errors.New("diverged"))
			tr.StartRunning()
			sched.Advance(clk.Now())
			Eventually(seen.runBatches).Should(Equal(1))

			network.script(model.TrainingResult{Loss: 3, Success: false}, nil)
			Eventually(func() int {
				tick()
				return seen.runBatches()
			}).Should(BeNumerically(">=", 3))

			Consistently(tr.Slot().Pending, 50*time.Millisecond).Should(BeFalse())
			Expect(seen.count()).To(BeZero())

			network.script(model.TrainingResult{Loss: 1, Success: true}, nil)
			Eventually(func() int {
				tick()
				return seen.count()
			}).Should(BeNumerically(">=", 1))
		})

		It("should stop firing after StopRunning", func() {
			tr := newTrainer()
			tr.StartRunning()
			tr.StartRunning()
			Expect(sched.Len()).To(Equal(1))
			Expect(tr.Running()).To(BeTrue())

			tr.StopRunning()
			Expect(tr.Running()).To(BeFalse())
			Expect(sched.Len()).To(BeZero())
			Expect(tick()).To(BeZero())
			tr.StopRunning()
		})
	})

	Context("when only some rows have enough grouped history", func() {
		It("should skip the cycle and publish nothing", func() {
			cfg.BatchSize = 3
			cfg.SequenceLength = 4
			cfg.MinSamplesBeforeTraining = 1

			// One store per batch row; the third has too little history.
			perRow := make([]*samples.GroupIndex[linear.Features, linear.Target, bool], 3)
			stores := make([]*store, 3)
			for i := range perRow {
				stores[i] = samples.NewStore[linear.Features, linear.Target]("row", rng.New(uint64(i+1)))
				perRow[i] = samples.CreateGroupIndex[bool](stores[i]).SetSelector(func(sample) bool { return true })
			}
			row := 0
			hooks.SampleSink = func(s sample) {
				stores[0].AddSample(s)
				stores[1].AddSample(s)
				if stores[2].Len() < 2 {
					stores[2].AddSample(s)
				}
			}
			hooks.SequenceSelector = func(out []sample) bool {
				idx := perRow[row%len(perRow)]
				row++
				return idx.TryPickRandomSequence(out)
			}

			tr := newTrainer()
			for i := 0; i < 10; i++ {
				tr.AddSample(makeSample(float64(i)))
			}
			Expect(tr.TryCreateBatch(samples.NewGrid[sample](3, 4))).To(BeFalse())

			row = 0
			tr.StartRunning()
			sched.Advance(clk.Now())
			Consistently(seen.runBatches, 50*time.Millisecond).Should(BeZero())
			Expect(tr.Slot().Pending()).To(BeFalse())
			Expect(seen.count()).To(BeZero())
			Expect(network.generation()).To(BeZero())
		})
	})

	Context("NotifyTrainingComplete", func() {
		It("should decode and publish a serialized model", func() {
			tr := newTrainer()
			data, err := fakeCodec{}.Serialize(&fakeNetwork{Generation: 9})
			Expect(err).NotTo(HaveOccurred())

			p, err := tr.NotifyTrainingComplete(data, model.TrainingResult{Loss: 0.1, Success: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Model.Generation).To(BeEquivalentTo(9))
			Expect(p.Version).To(BeEquivalentTo(1))
			Expect(seen.count()).To(Equal(1))

			claimed, ok := tr.Slot().TryClaim()
			Expect(ok).To(BeTrue())
			Expect(claimed.Model).To(BeIdenticalTo(p.Model))
		})

		It("should reject an unsuccessful result", func() {
			tr := newTrainer()
			data, _ := fakeCodec{}.Serialize(&fakeNetwork{})
			_, err := tr.NotifyTrainingComplete(data, model.TrainingResult{Success: false})
			Expect(err).To(MatchError(ErrTrainingRejected))
			Expect(tr.Slot().Pending()).To(BeFalse())
		})

		It("should return decoding errors without publishing", func() {
			tr := newTrainer()
			_, err := tr.NotifyTrainingComplete(nil, model.TrainingResult{Success: true})
			Expect(err).To(MatchError(ContainSubstring("decoding trained model")))
			Expect(tr.Slot().Pending()).To(BeFalse())
			Expect(seen.count()).To(BeZero())
		})
	})
})
