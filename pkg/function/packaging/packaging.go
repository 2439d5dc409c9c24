/*
Copyright 2022-2026 The nagare media authors

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

// Package packaging walks every committed fragment through the Track Run
// Iterator and validates the exact per-sample metadata a repackaging
// pipeline needs, in place of the coarse per-fragment duration estimate
// the ingest apps settle for. It is a read-only consumer of the event
// stream: it mutates nothing and republishes nothing, but surfaces a
// fragment whose sample table cannot be resolved the same way the
// manifest function surfaces one whose duration cannot be computed.
package packaging

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nagare-media/packager/pkg/config/v1alpha1"
	"github.com/nagare-media/packager/pkg/event"
	"github.com/nagare-media/packager/pkg/function"
	"github.com/nagare-media/packager/pkg/media"
	"github.com/nagare-media/packager/pkg/media/mp4"
	"github.com/nagare-media/packager/pkg/media/mp4/trackrun"
)

type packaging struct {
	cfg v1alpha1.Function
	log *zap.SugaredLogger

	mtx    sync.RWMutex
	movies map[*media.Track]*trackrun.Movie
}

func New(cfg v1alpha1.Function) (function.Function, error) {
	if err := function.CheckAndSetDefaults(&cfg); err != nil {
		return nil, err
	}

	return &packaging{
		cfg:    cfg,
		movies: make(map[*media.Track]*trackrun.Movie),
	}, nil
}

func (fn *packaging) Config() v1alpha1.Function {
	return fn.cfg
}

func (fn *packaging) Exec(ctx context.Context, execCtx function.ExecCtx) error {
	fn.log = execCtx.Logger()

	eventStream := execCtx.App().EventStream().Sub()
	defer execCtx.App().EventStream().Desub(eventStream)

	for {
		select {
		case <-ctx.Done():
			return nil

		case es := <-eventStream:
			switch e := es.(type) {
			case *event.InitSegmentEvent:
				if e.Type == event.InitSegmentCommittedEvent {
					fn.handleInitSegmentCommitted(e)
				}

			case *event.FragmentEvent:
				if e.Type == event.FragmentCommittedEvent {
					fn.handleFragmentCommitted(e)
				}
			}
		}
	}
}

func (fn *packaging) handleInitSegmentCommitted(e *event.InitSegmentEvent) {
	movie, err := mp4.ConvertMoovToMovie(e.Track.CMAFHeader.Moov)
	if err != nil {
		fn.log.With("error", err).Error("failed to convert init segment to track-run movie")
		return
	}

	fn.mtx.Lock()
	fn.movies[e.Track] = movie
	fn.mtx.Unlock()
}

func (fn *packaging) handleFragmentCommitted(e *event.FragmentEvent) {
	fn.mtx.RLock()
	movie, ok := fn.movies[e.Track]
	fn.mtx.RUnlock()
	if !ok {
		fn.log.Error("failed to find track-run movie for fragment's track")
		return
	}

	log := fn.log.With("file", e.File.Name())

	for _, chunk := range e.Fragment.Chunks {
		frag, err := mp4.ConvertMoofToFragment(chunk.Moof)
		if err != nil {
			log.With("error", err).Error("failed to convert fragment chunk to track-run fragment")
			continue
		}

		if err := fn.validateFragment(log, movie, frag); err != nil {
			log.With("error", err).Error("fragment failed track-run validation")
		}
	}
}

// validateFragment walks every sample of frag through the iterator,
// confirming invariant 1 (monotonic, summable decode timestamps) holds
// and that encrypted tracks at least expose a resolvable track-level
// encryption default. It does not read the fragment's 'mdat' bytes: CENC
// auxiliary info lives there, keyed by byte offsets this function has no
// way to resolve without the raw file-offset bookkeeping the ingest path
// does not currently keep (see DESIGN.md).
func (fn *packaging) validateFragment(log *zap.SugaredLogger, movie *trackrun.Movie, frag *trackrun.MovieFragment) error {
	it, err := trackrun.InitializeFragment(movie, frag, log)
	if err != nil {
		return fmt.Errorf("initialize fragment: %w", err)
	}

	var lastDTS int64 = -1
	var sampleCount int

	for it.IsRunValid() {
		for it.IsSampleValid() {
			dts, err := it.SampleDTS()
			if err != nil {
				return fmt.Errorf("sample dts: %w", err)
			}
			if dts < lastDTS {
				return fmt.Errorf("non-monotonic decode timestamp at sample %d", sampleCount)
			}
			lastDTS = dts

			desc, err := it.SampleDescription()
			if err != nil {
				return fmt.Errorf("sample description: %w", err)
			}
			if desc != nil && desc.Encrypted {
				needs, err := it.AuxInfoNeedsCaching()
				if err != nil {
					return fmt.Errorf("aux info needs caching: %w", err)
				}
				if needs && fn.cfg.Packaging != nil && fn.cfg.Packaging.RequireDecryptConfig {
					return fmt.Errorf("encrypted sample %d has uncached auxiliary info", sampleCount)
				}
			}

			sampleCount++
			it.AdvanceSample()
		}
		it.AdvanceRun()
	}

	log.Debugw("validated fragment", "samples", sampleCount)
	return nil
}
