// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package publicizer

import (
	"context"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Job identifies a single assembly to be publicized as part of a batch.
type Job struct {
	// Assembly to read
	Input string
	// Destination of the publicized assembly
	Output string
	// Optional destination of the change report
	Report string
}

// PublicizeFiles publicizes a batch of assemblies concurrently, using at most
// parallelism workers (or GOMAXPROCS when this is not positive).  Each job
// has its own copy of the options, hence its own report.  The first failure
// cancels any jobs not yet started, and is returned.
func PublicizeFiles(ctx context.Context, jobs []Job, opts *Options, parallelism int) error {
	if len(jobs) == 0 {
		return nil
	} else if opts == nil {
		opts = DefaultOptions()
	}
	//
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	//
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(parallelism, len(jobs)))
	//
	for _, job := range jobs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			//
			return publicizeJob(job, *opts)
		})
	}
	//
	if err := g.Wait(); err != nil {
		return err
	}
	//
	log.Infof("publicized %d assemblies", len(jobs))
	//
	return nil
}

func publicizeJob(job Job, opts Options) error {
	opts.Report = nil
	//
	if job.Report != "" {
		opts.Report = &Report{}
	}
	//
	if err := PublicizeFile(job.Input, job.Output, &opts); err != nil {
		return err
	}
	//
	if opts.Report != nil {
		return WriteReport(job.Report, opts.Report)
	}
	//
	return nil
}
