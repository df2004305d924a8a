package forecast

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/advisor"
	"github.com/surgecast/surgecast/server/internal/compute"
	"github.com/surgecast/surgecast/server/internal/fault"
	"github.com/surgecast/surgecast/server/internal/features"
	"github.com/surgecast/surgecast/server/internal/model"
)

// Pipeline computes briefings.
type Pipeline struct {
	features   *features.Aggregator
	model      model.Predictor
	classifier *compute.Classifier
	planner    *compute.Planner
	newID      func() string
}

// New returns a Pipeline.
func New(agg *features.Aggregator, predictor model.Predictor, classifier *compute.Classifier, planner *compute.Planner) *Pipeline {
	return &Pipeline{
		features:   agg,
		model:      predictor,
		classifier: classifier,
		planner:    planner,
		newID:      uuid.NewString,
	}
}

// Compute builds a fresh briefing for hospitalID on date. ComputedAt is left
// zero; the cache stamps it when publishing.
//
// Missing data and model failures propagate with their kind. Out-of-range
// values are wrapped as fault.KindInternal (see corrupt).
func (p *Pipeline) Compute(ctx context.Context, hospitalID, date string) (*types.Briefing, error) {
	in, err := p.features.Assemble(ctx, hospitalID, date)
	if err != nil {
		return nil, corrupt(err, "features", hospitalID, date)
	}

	out, err := p.model.Predict(ctx, in.Vector)
	if err != nil {
		return nil, corrupt(err, "model", hospitalID, date)
	}
	if err := model.CheckOutput(out); err != nil {
		return nil, corrupt(err, "model", hospitalID, date)
	}

	level, err := p.classifier.Classify(out.RiskScore)
	if err != nil {
		return nil, corrupt(err, "classify", hospitalID, date)
	}

	plan, err := p.planner.Plan(compute.PlanInput{
		ICUTotal:      in.State.ICUTotal,
		ICUOccupied:   in.State.ICUOccupied,
		StaffOnDuty:   in.State.StaffOnDuty,
		DailyPatients: in.State.DailyPatients,
		ERSurgePct:    out.ERIncreasePct,
		ICUSurgePct:   out.ICUIncreasePct,
	})
	if err != nil {
		return nil, corrupt(err, "plan", hospitalID, date)
	}

	oxygen, medicine := in.State.OxygenStatus, in.State.MedicineStatus
	recs := advisor.Generate(advisor.Input{
		RiskLevel:         level,
		AdditionalICUBeds: plan.AdditionalICUBeds,
		AdditionalStaff:   plan.AdditionalStaff,
		Oxygen:            oxygen,
		Medicine:          medicine,
	})
	reasons := advisor.Reasons(in.Vector, oxygen, medicine)

	b := &types.Briefing{
		ID:                p.newID(),
		HospitalID:        hospitalID,
		Date:              date,
		RiskScore:         out.RiskScore,
		RiskLevel:         level,
		ERSurgePct:        out.ERIncreasePct,
		ICUSurgePct:       out.ICUIncreasePct,
		AdditionalICUBeds: plan.AdditionalICUBeds,
		AdditionalStaff:   plan.AdditionalStaff,
		SupplyStatus:      p.planner.SupplyStatus(out.ERIncreasePct, oxygen, medicine),
		Recommendations:   recs,
		Reasons:           reasons,
		Summary:           advisor.Summary(level, out.RiskScore, reasons),
		ModelVersion:      out.ModelVersion,
		Fallback:          out.Fallback,
	}
	slog.Debug("forecast: briefing computed",
		"hospital", hospitalID, "date", date,
		"risk_score", b.RiskScore, "risk_level", b.RiskLevel,
		"beds", b.AdditionalICUBeds, "staff", b.AdditionalStaff,
		"fallback", b.Fallback)
	return b, nil
}

// corrupt annotates err with the failing stage. Out-of-contract data found
// inside the pipeline is an upstream defect rather than a caller mistake: it
// is logged at error level and reclassified as internal, keeping the original
// kind reachable through errors.Is.
func corrupt(err error, stage, hospitalID, date string) error {
	switch fault.KindOf(err) {
	case fault.KindOutOfRange, fault.KindInvalidCapacity, fault.KindInvalidArgument:
		slog.Error("forecast: upstream data out of contract",
			"stage", stage, "hospital", hospitalID, "date", date, "err", err)
		return fault.Wrap(fault.KindInternal, err, "%s", stage)
	}
	return fmt.Errorf("%s: %w", stage, err)
}
