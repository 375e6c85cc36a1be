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

package decider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/Strife-AI/Strife.ML/internal/config"
	"github.com/Strife-AI/Strife.ML/internal/logging"
	"github.com/Strife-AI/Strife.ML/pkg/async"
	"github.com/Strife-AI/Strife.ML/pkg/linear"
	"github.com/Strife-AI/Strife.ML/pkg/model"
	"github.com/Strife-AI/Strife.ML/pkg/rng"
	"github.com/Strife-AI/Strife.ML/pkg/samples"
	"github.com/Strife-AI/Strife.ML/pkg/trainer"
)

// constNetwork answers every row with its value, or with the row's first
// feature when echo is set.
type constNetwork struct {
	value float64
	echo  bool
	err   error
	short bool
	gate  chan struct{}
}

func (n *constNetwork) Decide(input samples.Grid[linear.Features]) ([]linear.Target, error) {
	if n.gate != nil {
		<-n.gate
	}
	if n.err != nil {
		return nil, n.err
	}
	rows := input.Rows()
	if n.short {
		rows--
	}
	out := make([]linear.Target, rows)
	for i := range out {
		out[i].Value = n.value
		if n.echo {
			out[i].Value = input.At(i, 0).Values[0]
		}
	}
	return out, nil
}

func (n *constNetwork) TrainBatch(samples.Batch[linear.Features, linear.Target]) (model.TrainingResult, error) {
	return model.TrainingResult{}, errors.New("not trainable")
}

func oneRow(values ...float64) samples.Grid[linear.Features] {
	return samples.GridOf([]linear.Features{{Values: values}})
}

func await[T any](h *async.Handle[T]) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.Wait(ctx)
}

var _ = Describe("Decider", func() {
	var (
		logger logr.Logger
		queue  *async.WorkQueue
		slot   *model.Slot[*constNetwork]
	)

	BeforeEach(func() {
		logger = logging.NewTestLogger()
		queue = async.NewWorkQueue(config.WorkQueueConfig{Workers: 4}, logger)
		queue.Start(context.Background())
		DeferCleanup(queue.Shutdown)
		slot = model.NewSlot[*constNetwork](nil)
	})

	It("should serve the initial network until a model is published", func() {
		d := New[linear.Features, linear.Target](&constNetwork{value: 1}, slot, queue, logger)

		out, err := await(d.MakeDecision(oneRow(0)))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]linear.Target{{Value: 1}}))
		Expect(d.Version()).To(BeZero())
		Expect(d.RunID()).To(Equal(uuid.Nil))
	})

	It("should switch to a newly published model on the next call", func() {
		d := New[linear.Features, linear.Target](&constNetwork{value: 1}, slot, queue, logger)
		next := &constNetwork{value: 2}
		published := slot.Publish(next)

		out, err := await(d.MakeDecision(oneRow(0)))
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Value).To(Equal(2.0))
		Expect(d.Version()).To(Equal(published.Version))
		Expect(d.RunID()).To(Equal(published.RunID))
		Expect(d.Network()).To(BeIdenticalTo(next))
		Expect(slot.Pending()).To(BeFalse())

		out, err = await(d.MakeDecision(oneRow(0)))
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Value).To(Equal(2.0), "the bound model stays until a newer one is published")
	})

	It("should decide on the input as it was when submitted", func() {
		gate := make(chan struct{})
		d := New[linear.Features, linear.Target](&constNetwork{echo: true, gate: gate}, slot, queue, logger)

		input := oneRow(5)
		h := d.MakeDecision(input)
		input.Set(0, 0, linear.Features{Values: []float64{99}})
		close(gate)

		out, err := await(h)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]linear.Target{{Value: 5}}))
	})

	It("should finish in-flight decisions on the model they were submitted with", func() {
		gate := make(chan struct{})
		d := New[linear.Features, linear.Target](&constNetwork{value: 1, gate: gate}, slot, queue, logger)

		first := d.MakeDecision(oneRow(0))
		slot.Publish(&constNetwork{value: 2})
		second := d.MakeDecision(oneRow(0))

		out, err := await(second)
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Value).To(Equal(2.0))
		Expect(first.IsComplete()).To(BeFalse())

		close(gate)
		out, err = await(first)
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Value).To(Equal(1.0))
	})

	It("should return one output per input row", func() {
		d := New[linear.Features, linear.Target](&constNetwork{value: 3}, slot, queue, logger)
		input := samples.GridOf(
			[]linear.Features{{Values: []float64{1}}, {Values: []float64{2}}},
			[]linear.Features{{Values: []float64{3}}, {Values: []float64{4}}},
			[]linear.Features{{Values: []float64{5}}, {Values: []float64{6}}},
		)
		out, err := await(d.MakeDecision(input))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(3))
	})

	It("should report network errors through the handle", func() {
		boom := errors.New("boom")
		d := New[linear.Features, linear.Target](&constNetwork{err: boom}, slot, queue, logger)
		_, err := await(d.MakeDecision(oneRow(0)))
		Expect(err).To(MatchError(boom))

		d = New[linear.Features, linear.Target](&constNetwork{short: true}, slot, queue, logger)
		_, err = await(d.MakeDecision(oneRow(0)))
		Expect(err).To(MatchError(ErrOutputCount))
	})

	It("should hand every published model to exactly one of many deciders", func() {
		deciders := make([]*Decider[linear.Features, linear.Target, *constNetwork], 8)
		for i := range deciders {
			deciders[i] = New[linear.Features, linear.Target](&constNetwork{}, slot, queue, logger)
		}
		slot.Publish(&constNetwork{value: 5})

		var wg sync.WaitGroup
		for _, d := range deciders {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := await(d.MakeDecision(oneRow(0)))
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		switched := 0
		for _, d := range deciders {
			if d.Version() == 1 {
				switched++
			}
		}
		Expect(switched).To(Equal(1))
	})
})

var _ = Describe("Training and serving pipeline", func() {
	It("should serve decisions from models trained in the background", func() {
		logger := logging.NewTestLogger()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		queue := async.NewWorkQueue(config.WorkQueueConfig{Workers: 2}, logger)
		queue.Start(ctx)
		defer queue.Shutdown()
		clk := testingclock.NewFakeClock(time.Now())
		sched := async.NewScheduler(queue, clk, logger)

		store := samples.NewStore[linear.Features, linear.Target]("pipeline", rng.New(11))
		index := samples.CreateGroupIndex[bool](store).SetSelector(func(s samples.Sample[linear.Features, linear.Target]) bool {
			return s.Input.Values[0] >= 0
		})

		network, err := linear.NewRegressor(1, 1e-6, 1)
		Expect(err).NotTo(HaveOccurred())
		initial, err := linear.NewRegressor(1, 1e-6, 1)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.TrainerConfig{BatchSize: 16, SequenceLength: 1, TrainsPerSecond: 100, MinSamplesBeforeTraining: 32}
		tr, err := trainer.New(cfg, network, model.Codec[*linear.Regressor](linear.Codec{}), sched,
			trainer.Hooks[linear.Features, linear.Target, *linear.Regressor]{
				SampleSink:       func(s samples.Sample[linear.Features, linear.Target]) { store.AddSample(s) },
				SequenceSelector: index.TryPickRandomSequence,
			}, logger)
		Expect(err).NotTo(HaveOccurred())
		d := New[linear.Features, linear.Target](initial, tr.Slot(), queue, logger)

		for i := 0; i < 64; i++ {
			x := float64(i%16) - 8
			tr.AddSample(samples.Sample[linear.Features, linear.Target]{
				Input:  linear.Features{Values: []float64{x}},
				Output: linear.Target{Value: 3*x - 2},
			})
		}
		Expect(tr.Active()).To(BeTrue())
		tr.StartRunning()

		Eventually(func(g Gomega) {
			clk.Step(cfg.Period())
			sched.Advance(clk.Now())
			out, err := await(d.MakeDecision(oneRow(4)))
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(d.Version()).To(BeNumerically(">", 0))
			g.Expect(out[0].Value).To(BeNumerically("~", 10, 1e-3))
		}).WithTimeout(10 * time.Second).Should(Succeed())
	})
})
