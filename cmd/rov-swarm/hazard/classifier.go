package hazard

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/picogrid/rov-simulations/pkg/logger"
)

//go:generate mockgen -destination "mock_classifier_test.go" -package $GOPACKAGE -write_package_comment=false github.com/picogrid/rov-simulations/cmd/rov-swarm/hazard Classifier

// ErrClassifierUnavailable is reported when no classification could be made
// for a tick.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// Classifier assigns one hazard code per node of the graph
type Classifier interface {
	Classify(ctx context.Context, graph Graph) ([]Code, error)
}

// Classifier kinds accepted by NewClassifier
const (
	KindRules   = "rules"
	KindOffline = "offline"
)

// NewClassifier returns the classifier registered under kind
func NewClassifier(kind string) (Classifier, error) {
	switch kind {
	case KindRules, "":
		return RuleClassifier{}, nil
	case KindOffline:
		return Offline{}, nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", kind)
	}
}

// RuleClassifier reads back the proximity rule encoded in each node's hazard
// feature. It stands in for a learned model trained on the same rule.
type RuleClassifier struct{}

func (RuleClassifier) Classify(ctx context.Context, graph Graph) ([]Code, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	codes := make([]Code, graph.NumNodes())
	for i, row := range graph.Features {
		codes[i] = Code(math.Round(row[FeatureHazard] * float64(OutOfRange))).Normalize()
	}
	return codes, nil
}

// Offline is a classifier that is never available
type Offline struct{}

func (Offline) Classify(context.Context, Graph) ([]Code, error) {
	return nil, ErrClassifierUnavailable
}

// ClassifyOrNominal runs the classifier and degrades to all-Nominal codes
// when it fails or returns the wrong number of codes. The returned codes are
// always usable; a non-nil error explains why they are nominal. Unknown codes
// in a successful result are mapped to Nominal.
func ClassifyOrNominal(ctx context.Context, c Classifier, graph Graph, log logger.Logger) ([]Code, error) {
	n := graph.NumNodes()

	var (
		codes []Code
		err   error
	)
	if c == nil {
		err = ErrClassifierUnavailable
	} else {
		codes, err = c.Classify(ctx, graph)
		if err == nil && len(codes) != n {
			err = fmt.Errorf("%w: got %d codes for %d nodes", ErrClassifierUnavailable, len(codes), n)
		}
	}

	if err != nil {
		if !errors.Is(err, ErrClassifierUnavailable) {
			err = fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
		}
		if log != nil {
			log.Warnf("Hazard classification degraded to nominal: %v", err)
		}
		return NominalCodes(n), err
	}

	out := make([]Code, n)
	for i, code := range codes {
		out[i] = code.Normalize()
	}
	return out, nil
}
