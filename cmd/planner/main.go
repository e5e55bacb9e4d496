// Command planner solves a single launch-velocity problem and prints the
// result and trajectory as JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"google.golang.org/protobuf/encoding/protojson"

	"github.com/signalsfoundry/trajectory-planner/core"
	"github.com/signalsfoundry/trajectory-planner/internal/logging"
	"github.com/signalsfoundry/trajectory-planner/internal/nbi"
	"github.com/signalsfoundry/trajectory-planner/kb"
	"github.com/signalsfoundry/trajectory-planner/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, logging.NewFromEnv()))
}

func run(ctx context.Context, args []string, stdout io.Writer, log logging.Logger) int {
	fs := flag.NewFlagSet("planner", flag.ContinueOnError)
	x0 := fs.Float64("x0", 0, "initial x position (m)")
	y0 := fs.Float64("y0", 0, "initial y position (m)")
	xt := fs.Float64("xt", 1000, "target x position (m)")
	yt := fs.Float64("yt", 500, "target y position (m)")
	horizon := fs.Float64("horizon", 20, "flight time (s)")
	samples := fs.Int("samples", 1000, "trajectory samples in the output")
	seedVX := fs.Float64("seed-vx", core.DefaultSeedSpeed, "initial guess for the launch x velocity (m/s)")
	seedVY := fs.Float64("seed-vy", core.DefaultSeedSpeed, "initial guess for the launch y velocity (m/s)")
	tol := fs.Float64("tol", 0, "residual tolerance in metres (0 uses a tolerance relative to the distance)")
	maxIter := fs.Int("max-iter", core.DefaultMaxIterations, "optimizer iteration budget")
	maxDur := fs.Duration("max-duration", 0, "optimizer wall-clock budget (0 disables)")
	evalSamples := fs.Int("eval-samples", core.DefaultEvaluationSamples, "samples per trajectory while optimizing")
	modelName := fs.String("model", kb.DefaultModelName, "physical model name in the catalog")
	modelsPath := fs.String("models", "", "JSON file with additional physical models")
	omitTrajectory := fs.Bool("summary", false, "print only the optimization result")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	catalog := kb.NewWithDefaults()
	if *modelsPath != "" {
		if _, err := catalog.LoadFile(*modelsPath); err != nil {
			log.Error(ctx, "failed to load physical models", logging.String("path", *modelsPath), logging.Err(err))
			return 1
		}
	}
	pm, err := catalog.GetModel(*modelName)
	if err != nil {
		log.Error(ctx, "unknown physical model", logging.String("model", *modelName), logging.Any("available", catalog.ListModels()))
		return 1
	}

	planner, err := core.NewPlanner(pm, log, core.WithEvaluationSamples(*evalSamples))
	if err != nil {
		log.Error(ctx, "invalid physical model", logging.String("model", *modelName), logging.Err(err))
		return 1
	}

	problem := model.BoundaryProblem{
		Initial:           model.Vec2{X: *x0, Y: *y0},
		Target:            model.Vec2{X: *xt, Y: *yt},
		Horizon:           *horizon,
		Samples:           *samples,
		Seed:              &model.Vec2{X: *seedVX, Y: *seedVY},
		ResidualTolerance: *tol,
		MaxIterations:     *maxIter,
		MaxDuration:       *maxDur,
	}

	ctx, _ = logging.EnsureRequestID(ctx)
	start := time.Now()
	traj, res, err := planner.Solve(ctx, problem)
	if err != nil {
		log.Error(ctx, "solve failed", logging.Err(err))
		return 1
	}
	log.Debug(ctx, "solve complete", logging.Duration("elapsed", time.Since(start)))

	out, err := nbi.ResponseToStruct(traj, res, !*omitTrajectory)
	if err != nil {
		log.Error(ctx, "encode result", logging.Err(err))
		return 1
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(out)
	if err != nil {
		log.Error(ctx, "encode result", logging.Err(err))
		return 1
	}
	fmt.Fprintln(stdout, string(data))

	if !res.Converged {
		return 3
	}
	return 0
}
