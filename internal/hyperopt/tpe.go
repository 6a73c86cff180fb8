package hyperopt

import (
	"context"

	"algo_bot/internal/models"
	"algo_bot/internal/params"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNoSuccessfulTrial = errors.New("no trial finished with status ok")

// errTrialFailed marks a FAIL result towards the study, which records the
// trial as failed and keeps it out of the sampler's model.
var errTrialFailed = errors.New("trial failed")

const (
	DefaultStartup    = 20
	DefaultCandidates = 24
)

// Objective evaluates one parameter vector. It reports failure through the
// result, never through a panic or an error.
type Objective func(ctx context.Context, p params.Values) models.TrialResult

type Trial struct {
	Number int
	Params params.Values
	Result models.TrialResult
}

type Result struct {
	Trials []Trial
	Best   *Trial
}

// BestLoss returns the loss of the best trial, false when there is none.
func (r *Result) BestLoss() (float64, bool) {
	if r == nil || r.Best == nil {
		return 0, false
	}
	return r.Best.Result.LossValue()
}

// TPE is a sequential Tree-structured Parzen Estimator. The zero value uses
// the package defaults with seed 0.
type TPE struct {
	Seed       int64
	Startup    int
	Candidates int

	// OnTrial is called after every evaluation.
	OnTrial func(Trial)
	Log     *zap.Logger
}

func (t *TPE) study() (*goptuna.Study, error) {
	startup := t.Startup
	if startup <= 0 {
		startup = DefaultStartup
	}
	candidates := t.Candidates
	if candidates <= 0 {
		candidates = DefaultCandidates
	}
	log := t.Log
	if log == nil {
		log = zap.NewNop()
	}

	sampler := tpe.NewSampler(
		tpe.SamplerOptionSeed(t.Seed),
		tpe.SamplerOptionNumberOfStartupTrials(startup),
		tpe.SamplerOptionNumberOfEICandidates(candidates),
	)
	return goptuna.CreateStudy("algo_bot",
		goptuna.StudyOptionSampler(sampler),
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
		goptuna.StudyOptionLogger(studyLogger{log.Sugar()}),
	)
}

// Minimize runs budget sequential trials. Failed trials never become best
// and are left out of the density model. A cancelled ctx stops the loop
// early; the trials run so far are returned together with ctx.Err().
func (t *TPE) Minimize(ctx context.Context, space Space, objective Objective, budget int) (*Result, error) {
	if budget <= 0 {
		return nil, errors.Errorf("budget must be positive, got %d", budget)
	}
	if err := space.validate(); err != nil {
		return nil, err
	}
	study, err := t.study()
	if err != nil {
		return nil, errors.Wrap(err, "create study")
	}

	res := &Result{Trials: make([]Trial, 0, budget)}
	names := space.names()

	evaluate := func(gt goptuna.Trial) (float64, error) {
		values := make(params.Values, len(names))
		for _, name := range names {
			v, err := space[name].suggest(gt, name)
			if err != nil {
				return 0, errors.Wrapf(err, "suggest %s", name)
			}
			values[name] = v
		}

		trial := Trial{
			Number: len(res.Trials),
			Params: values,
			Result: objective(ctx, values.Clone()),
		}
		res.Trials = append(res.Trials, trial)

		loss, ok := trial.Result.LossValue()
		if ok {
			if best, hasBest := res.BestLoss(); !hasBest || loss < best {
				res.Best = &res.Trials[len(res.Trials)-1]
			}
		}
		if t.OnTrial != nil {
			t.OnTrial(trial)
		}
		if !ok {
			return 0, errTrialFailed
		}
		return loss, nil
	}

	for n := 0; n < budget; n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := study.Optimize(evaluate, 1); err != nil && !errors.Is(err, errTrialFailed) {
			return res, errors.Wrapf(err, "trial %d", n)
		}
	}

	if res.Best == nil {
		return res, ErrNoSuccessfulTrial
	}
	return res, nil
}

// studyLogger routes the study's key/value logs to zap. Objective errors are
// FAIL trials, which the caller already reports, so they stay at debug.
type studyLogger struct {
	s *zap.SugaredLogger
}

func (l studyLogger) Debug(msg string, fields ...interface{}) { l.s.Debugw(msg, fields...) }
func (l studyLogger) Info(msg string, fields ...interface{}) { l.s.Debugw(msg, fields...) }
func (l studyLogger) Warn(msg string, fields ...interface{}) { l.s.Warnw(msg, fields...) }
func (l studyLogger) Error(msg string, fields ...interface{}) { l.s.Debugw(msg, fields...) }
