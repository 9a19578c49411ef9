package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/domain"
)

// maxRecommendations caps the output list so the clinician reviews a
// short, ordered set rather than the whole formulary.
const maxRecommendations = 3

// guidelineCitations back dose-reduction rationales whenever the
// knowledge-search collaborator is disabled or unavailable.
var guidelineCitations = []string{
	"CONDOR trial: dose reduction of TNF inhibitors in sustained low disease activity (Ann Rheum Dis)",
	"Atalay et al., dose reduction of biologics in chronic plaque psoriasis (JAMA Dermatol 2020)",
	"Joint AAD-NPF guidelines for biologic treatment of psoriasis (JAAD 2019)",
}

// RecommendationEngine runs the full assessment pipeline: input
// validation, dose-level inference, quadrant classification, candidate
// filtering, and the tier cascade that produces at most three ranked
// recommendations.
type RecommendationEngine struct {
	log      *logrus.Logger
	doses    *DoseLevelDetector
	quadrant *QuadrantResolver
	filter   *ContraindicationFilter
	ranker   domain.EfficacyRanker
	searcher domain.EvidenceSearcher
}

// NewRecommendationEngine wires the engine. searcher may be nil; dose
// reduction rationales then fall back to fixed guideline citations.
func NewRecommendationEngine(log *logrus.Logger, ranker domain.EfficacyRanker, searcher domain.EvidenceSearcher) *RecommendationEngine {
	return &RecommendationEngine{
		log:      log,
		doses:    NewDoseLevelDetector(log),
		quadrant: NewQuadrantResolver(log),
		filter:   NewContraindicationFilter(log),
		ranker:   ranker,
		searcher: searcher,
	}
}

// GenerateRecommendations runs one assessment. The same input and patient
// data always produce the same classification and recommendation set;
// collaborator failures degrade the ranking, never the result.
func (e *RecommendationEngine) GenerateRecommendations(
	ctx context.Context,
	input *domain.AssessmentInput,
	patient *domain.PatientWithData,
) (*domain.AssessmentResult, error) {
	start := time.Now()

	if err := input.Validate(); err != nil {
		return nil, domain.NewAssessmentError(domain.ErrInvalidInput, "assessment input failed validation", err.Error())
	}
	if patient.CurrentBiologic == nil {
		return nil, domain.NewAssessmentError(domain.ErrMissingBiologic,
			"patient has no active biologic on record",
			"the engine assesses an existing therapy; treatment-naive patients are out of scope")
	}
	if len(patient.Formulary) == 0 {
		return nil, domain.NewAssessmentError(domain.ErrEmptyFormulary,
			"no active formulary snapshot for plan", patient.PlanID)
	}

	current := patient.CurrentBiologic
	currentDrug, currentTier := e.locateCurrentDrug(patient.Formulary, current.DrugName)

	doseLevel := e.doses.Detect(current.DrugName, current.Frequency)
	formularyOptimal := DetermineFormularyStatus(currentDrug)
	quadrant := e.quadrant.Resolve(input.DLQIScore, input.MonthsStable, formularyOptimal)

	indicated := FilterByIndication(e.log, patient.Formulary, input.Diagnosis)
	if len(indicated) == 0 {
		return nil, domain.NewAssessmentError(domain.ErrNoIndicatedDrugs,
			"no formulary drug is indicated for the diagnosis", input.Diagnosis.String())
	}

	safe, excluded := e.filter.Partition(indicated, patient.Contraindications)

	e.log.WithFields(logrus.Fields{
		"patient_id":        input.PatientID,
		"quadrant":          quadrant.String(),
		"dose_level":        doseLevel.Percent(),
		"current_tier":      currentTier,
		"formulary_optimal": formularyOptimal,
		"safe_candidates":   len(safe),
		"excluded":          len(excluded),
	}).Info("Classified treatment state")

	profile := domain.ClinicalProfile{
		Diagnosis:             input.Diagnosis,
		HasPsoriaticArthritis: input.HasPsoriaticArthritis,
		Contraindications:     patient.Contraindications,
		CurrentDrug:           current.DrugName,
		DLQIScore:             input.DLQIScore,
		MonthsStable:          input.MonthsStable,
		Notes:                 input.AdditionalNotes,
	}

	recs := e.buildForQuadrant(ctx, quadrant, doseLevel, current, currentTier, formularyOptimal, safe, profile)
	recs = e.enforceSafety(recs, excluded)
	recs = finalizeRanks(recs)

	result := &domain.AssessmentResult{
		AssessmentID:         uuid.New().String(),
		PatientID:            input.PatientID,
		IsStable:             quadrant.IsStable(),
		IsFormularyOptimal:   formularyOptimal,
		Quadrant:             quadrant,
		DoseReductionLevel:   doseLevel,
		Recommendations:      recs,
		ContraindicatedDrugs: excluded,
		GeneratedAt:          time.Now().UTC(),
		ProcessingTime:       time.Since(start),
	}

	e.log.WithFields(logrus.Fields{
		"assessment_id":   result.AssessmentID,
		"patient_id":      result.PatientID,
		"recommendations": len(result.Recommendations),
		"processing_time": result.ProcessingTime.String(),
	}).Info("Assessment complete")

	return result, nil
}

// locateCurrentDrug finds the active biologic in the formulary snapshot.
// A current drug absent from the formulary is by definition not
// formulary-optimal; it is assigned a synthetic tier one past the worst
// observed so every on-formulary candidate cascades below it.
func (e *RecommendationEngine) locateCurrentDrug(formulary []domain.FormularyDrug, name string) (*domain.FormularyDrug, int) {
	worst := minTier
	for i := range formulary {
		if formulary[i].Matches(name) {
			return &formulary[i], formulary[i].Tier
		}
		if formulary[i].Tier > worst {
			worst = formulary[i].Tier
		}
	}
	e.log.WithField("drug", name).Warn("Current biologic not on active formulary, treating as off-formulary")
	return nil, worst + 1
}

// buildForQuadrant dispatches to the per-state strategy. Each strategy
// emits its candidates in priority order; rank numbers are assigned after
// the safety pass.
func (e *RecommendationEngine) buildForQuadrant(
	ctx context.Context,
	quadrant domain.TreatmentQuadrant,
	doseLevel domain.DoseReductionLevel,
	current *domain.CurrentBiologic,
	currentTier int,
	formularyOptimal bool,
	safe []domain.FormularyDrug,
	profile domain.ClinicalProfile,
) []domain.RecommendationOutput {
	switch quadrant {
	case domain.STABLE_FORMULARY_ALIGNED:
		return e.stableAligned(ctx, doseLevel, current, currentTier, safe, profile)
	case domain.STABLE_NON_FORMULARY:
		return e.stableNonFormulary(ctx, doseLevel, current, currentTier, safe, profile)
	case domain.STABLE_SHORT_DURATION:
		return e.stableShortDuration(ctx, current, currentTier, formularyOptimal, safe, profile)
	case domain.UNSTABLE_FORMULARY_ALIGNED:
		return e.unstableAligned(ctx, doseLevel, current, currentTier, safe, profile)
	case domain.UNSTABLE_NON_FORMULARY:
		return e.unstableNonFormulary(ctx, doseLevel, current, currentTier, safe, profile)
	default:
		return nil
	}
}

// stableAligned handles sustained control on a tier-1, no-PA drug. The
// strategy branches on dose level: at standard dosing the next interval
// extension leads; at 25% the next step and a return-to-standard option
// frame the continue choice; at the 50% maximum the remaining levers are
// holding, stepping back to 25%, or returning to the labeled schedule.
func (e *RecommendationEngine) stableAligned(
	ctx context.Context,
	doseLevel domain.DoseReductionLevel,
	current *domain.CurrentBiologic,
	currentTier int,
	safe []domain.FormularyDrug,
	profile domain.ClinicalProfile,
) []domain.RecommendationOutput {
	continueRec := domain.RecommendationOutput{
		Type:         domain.CONTINUE_CURRENT,
		DrugName:     current.DrugName,
		NewDose:      current.Dose,
		NewFrequency: current.Frequency,
		Rationale: fmt.Sprintf(
			"Disease controlled (DLQI %d) for %d months on %s at %s dosing; continuing current therapy is clinically sound.",
			profile.DLQIScore, profile.MonthsStable, current.DrugName, describeDoseLevel(doseLevel)),
		MonitoringPlan: monitoringPlanFor(domain.CONTINUE_CURRENT),
	}

	var recs []domain.RecommendationOutput
	switch doseLevel {
	case domain.DoseStandard:
		recs = append(recs, e.doseReductionRec(ctx, current, currentTier, doseLevel, doseLevel.NextReduction(), profile))
		recs = append(recs, continueRec)
		admit := func(drug domain.FormularyDrug) bool {
			return drug.Tier == currentTier || drug.Tier == currentTier+1
		}
		if alt := e.bestAlternative(ctx, current, currentTier, safe, profile, admit); alt != nil {
			recs = append(recs, *alt)
		} else {
			recs = append(recs, domain.RecommendationOutput{
				Type:     domain.OPTIMIZE_CURRENT,
				DrugName: current.DrugName,
				Rationale: fmt.Sprintf(
					"Schedule DLQI reassessment in 3 months to confirm sustained response on %s before further optimization.",
					current.DrugName),
				MonitoringPlan: monitoringPlanFor(domain.OPTIMIZE_CURRENT),
			})
		}
	case domain.DoseReduced25:
		recs = append(recs, e.doseReductionRec(ctx, current, currentTier, doseLevel, doseLevel.NextReduction(), profile))
		recs = append(recs, continueRec)
		recs = append(recs, e.returnToStandardRec(current, fmt.Sprintf(
			"Returning %s to standard maintenance dosing remains available should the %d%% interval extension prove hard to sustain.",
			current.DrugName, doseLevel.Percent())))
	default: // at the 50% maximum
		continueRec.Rationale = fmt.Sprintf(
			"Disease controlled (DLQI %d) for %d months on %s at the maximum 50%% interval extension; maintain the current reduced schedule.",
			profile.DLQIScore, profile.MonthsStable, current.DrugName)
		recs = append(recs, continueRec)

		back := doseLevel.StepBack()
		recs = append(recs, domain.RecommendationOutput{
			Type:         domain.OPTIMIZE_CURRENT,
			DrugName:     current.DrugName,
			NewDose:      current.Dose,
			NewFrequency: frequencyAtLevel(current.DrugName, back),
			Rationale: fmt.Sprintf(
				"At any early sign of recurrence, step %s back to a %d%% interval extension before abandoning the reduction entirely.",
				current.DrugName, back.Percent()),
			MonitoringPlan: monitoringPlanFor(domain.OPTIMIZE_CURRENT),
		})
		recs = append(recs, e.returnToStandardRec(current, fmt.Sprintf(
			"A full return of %s to standard maintenance dosing remains available if stepped dosing no longer holds control.",
			current.DrugName)))
	}

	return recs
}

// stableNonFormulary handles sustained control on a non-preferred drug:
// the tier cascade proposes cheaper switches, biosimilars of the current
// agent first, then keeps continue-current as the conservative option.
// Higher tiers enter only as a last resort when the list is still short.
func (e *RecommendationEngine) stableNonFormulary(
	ctx context.Context,
	doseLevel domain.DoseReductionLevel,
	current *domain.CurrentBiologic,
	currentTier int,
	safe []domain.FormularyDrug,
	profile domain.ClinicalProfile,
) []domain.RecommendationOutput {
	var recs []domain.RecommendationOutput

	switches := e.cascadeSwitches(ctx, current, currentTier, safe, profile, maxRecommendations-1)
	recs = append(recs, switches...)

	if doseLevel != domain.DoseReduced50 && len(recs) < maxRecommendations-1 {
		next := doseLevel.NextReduction()
		recs = append(recs, e.doseReductionRec(ctx, current, currentTier, doseLevel, next, profile))
	}

	recs = append(recs, domain.RecommendationOutput{
		Type:         domain.CONTINUE_CURRENT,
		DrugName:     current.DrugName,
		NewDose:      current.Dose,
		NewFrequency: current.Frequency,
		Rationale: fmt.Sprintf(
			"Disease controlled (DLQI %d) for %d months; continuing %s remains an option if switching is declined, at tier %d cost.",
			profile.DLQIScore, profile.MonthsStable, current.DrugName, currentTier),
		MonitoringPlan: monitoringPlanFor(domain.CONTINUE_CURRENT),
	})

	if len(recs) < maxRecommendations {
		recs = append(recs, e.lastResortSwitches(ctx, current, currentTier, safe, profile, maxRecommendations-len(recs))...)
	}

	return recs
}

// stableShortDuration handles controlled disease without the six months of
// history needed for dose changes. Tier switches stay on the table; dose
// reductions never appear here.
func (e *RecommendationEngine) stableShortDuration(
	ctx context.Context,
	current *domain.CurrentBiologic,
	currentTier int,
	formularyOptimal bool,
	safe []domain.FormularyDrug,
	profile domain.ClinicalProfile,
) []domain.RecommendationOutput {
	var recs []domain.RecommendationOutput

	monthsRemaining := stableMonthsRequired - profile.MonthsStable

	if !formularyOptimal {
		recs = append(recs, e.cascadeSwitches(ctx, current, currentTier, safe, profile, maxRecommendations-1)...)
	}

	recs = append(recs, domain.RecommendationOutput{
		Type:         domain.CONTINUE_CURRENT,
		DrugName:     current.DrugName,
		NewDose:      current.Dose,
		NewFrequency: current.Frequency,
		Rationale: fmt.Sprintf(
			"Disease controlled (DLQI %d) but only %d of the %d months of sustained stability required before dose reduction; continue current dosing for %d more months.",
			profile.DLQIScore, profile.MonthsStable, stableMonthsRequired, monthsRemaining),
		MonitoringPlan: monitoringPlanFor(domain.CONTINUE_CURRENT),
	})

	if len(recs) < maxRecommendations {
		used := map[string]bool{}
		for _, rec := range recs {
			used[strings.ToLower(rec.DrugName)] = true
		}
		admit := func(drug domain.FormularyDrug) bool {
			return drug.Tier <= currentTier && !used[strings.ToLower(drug.DrugName)]
		}
		if alt := e.bestAlternative(ctx, current, currentTier, safe, profile, admit); alt != nil {
			recs = append(recs, *alt)
		} else {
			recs = append(recs, domain.RecommendationOutput{
				Type:     domain.OPTIMIZE_CURRENT,
				DrugName: current.DrugName,
				Rationale: fmt.Sprintf(
					"Reassess DLQI at the %d-month mark; sustained control then opens dose-reduction eligibility.",
					stableMonthsRequired),
				MonitoringPlan: monitoringPlanFor(domain.OPTIMIZE_CURRENT),
			})
		}
	}

	return recs
}

// unstableAligned handles uncontrolled disease on the preferred drug. A
// prior interval extension is the first suspect; at standard dosing,
// adherence work and monitoring come before any switch, and a mechanism
// change fills the last slot only because no dose lever remains.
func (e *RecommendationEngine) unstableAligned(
	ctx context.Context,
	doseLevel domain.DoseReductionLevel,
	current *domain.CurrentBiologic,
	currentTier int,
	safe []domain.FormularyDrug,
	profile domain.ClinicalProfile,
) []domain.RecommendationOutput {
	var recs []domain.RecommendationOutput

	if doseLevel != domain.DoseStandard {
		recs = append(recs, e.returnToStandardRec(current, fmt.Sprintf(
			"Disease flare (DLQI %d) on a %d%% interval extension of %s; return to standard maintenance dosing before any other change.",
			profile.DLQIScore, doseLevel.Percent(), current.DrugName)))
		recs = append(recs, domain.RecommendationOutput{
			Type:     domain.CONTINUE_CURRENT,
			DrugName: current.DrugName,
			Rationale: fmt.Sprintf(
				"Reassess DLQI 8-12 weeks after restoring standard dosing; escalate only if control is not regained on %s.",
				current.DrugName),
			MonitoringPlan: monitoringPlanFor(domain.CONTINUE_CURRENT),
		})
		return recs
	}

	recs = append(recs, domain.RecommendationOutput{
		Type:     domain.OPTIMIZE_CURRENT,
		DrugName: current.DrugName,
		Rationale: fmt.Sprintf(
			"Disease uncontrolled (DLQI %d) on standard dosing of %s; verify adherence, injection technique, and refill gaps before switching mechanism.",
			profile.DLQIScore, current.DrugName),
		MonitoringPlan: monitoringPlanFor(domain.OPTIMIZE_CURRENT),
	})

	recs = append(recs, domain.RecommendationOutput{
		Type:     domain.CONTINUE_CURRENT,
		DrugName: current.DrugName,
		Rationale: fmt.Sprintf(
			"If adherence is confirmed, reassess DLQI in 8 weeks on %s before committing to a therapeutic switch.",
			current.DrugName),
		MonitoringPlan: monitoringPlanFor(domain.CONTINUE_CURRENT),
	})

	if mechanismSwitch := e.differentMechanismSwitch(ctx, current, currentTier, safe, profile); mechanismSwitch != nil {
		recs = append(recs, *mechanismSwitch)
	} else {
		recs = append(recs, domain.RecommendationOutput{
			Type:     domain.OPTIMIZE_CURRENT,
			DrugName: current.DrugName,
			Rationale: fmt.Sprintf(
				"No safe different-mechanism alternative is on formulary; add adjunctive topical therapy or phototherapy alongside %s while control is regained.",
				current.DrugName),
			MonitoringPlan: monitoringPlanFor(domain.OPTIMIZE_CURRENT),
		})
	}

	return recs
}

// unstableNonFormulary handles uncontrolled disease on a non-preferred
// drug. A prior interval extension must be undone first; after that both
// the clinical and the cost argument point at a switch, so the cascade
// fills the remaining slots with ranked alternatives.
func (e *RecommendationEngine) unstableNonFormulary(
	ctx context.Context,
	doseLevel domain.DoseReductionLevel,
	current *domain.CurrentBiologic,
	currentTier int,
	safe []domain.FormularyDrug,
	profile domain.ClinicalProfile,
) []domain.RecommendationOutput {
	var recs []domain.RecommendationOutput

	if doseLevel != domain.DoseStandard {
		recs = append(recs, e.returnToStandardRec(current, fmt.Sprintf(
			"Disease flare (DLQI %d) on a %d%% interval extension of %s; return to standard maintenance dosing before any other change.",
			profile.DLQIScore, doseLevel.Percent(), current.DrugName)))
	}

	switches := e.cascadeSwitches(ctx, current, currentTier, safe, profile, maxRecommendations-len(recs))
	for i := range switches {
		if switches[i].Type == domain.SWITCH_TO_PREFERRED {
			switches[i].Type = domain.THERAPEUTIC_SWITCH
			switches[i].Rationale = fmt.Sprintf(
				"Disease uncontrolled (DLQI %d) on %s; %s", profile.DLQIScore, current.DrugName,
				lowerFirst(switches[i].Rationale))
		}
	}
	recs = append(recs, switches...)

	if len(recs) < maxRecommendations {
		recs = append(recs, domain.RecommendationOutput{
			Type:     domain.OPTIMIZE_CURRENT,
			DrugName: current.DrugName,
			Rationale: fmt.Sprintf(
				"No suitable formulary alternative remains after safety screening; optimize adherence on %s and escalate for specialist review.",
				current.DrugName),
			MonitoringPlan: monitoringPlanFor(domain.OPTIMIZE_CURRENT),
		})
	}

	return recs
}

// cascadeSwitches is the tier cascade. It walks safe, indicated candidates
// on strictly lower tiers than the current drug, cheapest tier first.
// Within a tier the efficacy ranker orders the group, with biosimilars of
// the current agent promoted ahead since they avoid a mechanism change.
func (e *RecommendationEngine) cascadeSwitches(
	ctx context.Context,
	current *domain.CurrentBiologic,
	currentTier int,
	safe []domain.FormularyDrug,
	profile domain.ClinicalProfile,
	limit int,
) []domain.RecommendationOutput {
	byTier := map[int][]domain.FormularyDrug{}
	var tiers []int
	for _, drug := range safe {
		if drug.Tier >= currentTier || drug.Matches(current.DrugName) {
			continue
		}
		if _, seen := byTier[drug.Tier]; !seen {
			tiers = append(tiers, drug.Tier)
		}
		byTier[drug.Tier] = append(byTier[drug.Tier], drug)
	}
	sort.Ints(tiers)

	var recs []domain.RecommendationOutput
	for _, tier := range tiers {
		if len(recs) >= limit {
			break
		}
		ranked := e.rankTierGroup(ctx, byTier[tier], current.DrugName, profile)
		for _, candidate := range ranked {
			if len(recs) >= limit {
				break
			}
			recs = append(recs, e.switchRec(candidate, current, currentTier, profile))
		}
	}
	return recs
}

// lastResortSwitches cascades tiers strictly above the current drug,
// cheapest first. It runs only when the lower-tier cascade, the dose
// lever, and continue-current together leave the list short; the rendered
// recommendations carry no cost claim since the move is upward.
func (e *RecommendationEngine) lastResortSwitches(
	ctx context.Context,
	current *domain.CurrentBiologic,
	currentTier int,
	safe []domain.FormularyDrug,
	profile domain.ClinicalProfile,
	limit int,
) []domain.RecommendationOutput {
	byTier := map[int][]domain.FormularyDrug{}
	var tiers []int
	for _, drug := range safe {
		if drug.Tier <= currentTier || drug.Matches(current.DrugName) {
			continue
		}
		if _, seen := byTier[drug.Tier]; !seen {
			tiers = append(tiers, drug.Tier)
		}
		byTier[drug.Tier] = append(byTier[drug.Tier], drug)
	}
	sort.Ints(tiers)

	var recs []domain.RecommendationOutput
	for _, tier := range tiers {
		if len(recs) >= limit {
			break
		}
		ranked := e.rankTierGroup(ctx, byTier[tier], current.DrugName, profile)
		for _, candidate := range ranked {
			if len(recs) >= limit {
				break
			}
			drug := candidate.Drug
			rationale := fmt.Sprintf(
				"No lower-tier option for %s clears safety and indication screening; %s (tier %d) remains an indicated alternative to %s despite the higher tier.",
				profile.Diagnosis.String(), drug.DrugName, drug.Tier, current.DrugName)
			if candidate.Reasoning != "" {
				rationale = rationale + " " + candidate.Reasoning
			}
			t := drug.Tier
			requiresPA := drug.RequiresPA.Required()
			recs = append(recs, domain.RecommendationOutput{
				Type:           domain.SWITCH_TO_PREFERRED,
				DrugName:       drug.DrugName,
				Rationale:      rationale,
				MonitoringPlan: monitoringPlanFor(domain.SWITCH_TO_PREFERRED),
				Tier:           &t,
				RequiresPA:     &requiresPA,
			})
		}
	}
	return recs
}

// rankTierGroup orders one tier's candidates: biosimilars of the current
// drug first, then the efficacy ranker's order. The ranker contract never
// returns an error that matters; a defensive formulary-order fallback
// covers a misbehaving implementation.
func (e *RecommendationEngine) rankTierGroup(
	ctx context.Context,
	group []domain.FormularyDrug,
	currentDrug string,
	profile domain.ClinicalProfile,
) []domain.RankedCandidate {
	ranked, err := e.ranker.Rank(ctx, group, profile)
	if err != nil || len(ranked) != len(group) {
		e.log.WithFields(logrus.Fields{
			"ranker": e.ranker.Name(),
			"error":  err,
		}).Warn("Efficacy ranker degraded, using formulary order")
		ranked = make([]domain.RankedCandidate, len(group))
		for i, drug := range group {
			ranked[i] = domain.RankedCandidate{
				Drug:      drug,
				Rank:      i + 1,
				Reasoning: "Efficacy ranking unavailable; formulary order applied",
			}
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		bi := ranked[i].Drug.IsBiosimilarOf(currentDrug)
		bj := ranked[j].Drug.IsBiosimilarOf(currentDrug)
		if bi != bj {
			return bi
		}
		return ranked[i].Rank < ranked[j].Rank
	})
	return ranked
}

// switchRec renders one cascade candidate as a recommendation with its
// tier cost comparison and PA status.
func (e *RecommendationEngine) switchRec(
	candidate domain.RankedCandidate,
	current *domain.CurrentBiologic,
	currentTier int,
	profile domain.ClinicalProfile,
) domain.RecommendationOutput {
	drug := candidate.Drug
	recType := domain.SWITCH_TO_PREFERRED
	rationale := fmt.Sprintf(
		"Switching from %s (tier %d) to %s (tier %d) preserves an indicated option for %s at lower plan cost.",
		current.DrugName, currentTier, drug.DrugName, drug.Tier, profile.Diagnosis.String())
	if drug.IsBiosimilarOf(current.DrugName) {
		recType = domain.SWITCH_TO_BIOSIMILAR
		rationale = fmt.Sprintf(
			"%s is a biosimilar of %s: same mechanism and expected response at tier %d cost.",
			drug.DrugName, current.DrugName, drug.Tier)
	}
	if candidate.Reasoning != "" {
		rationale = rationale + " " + candidate.Reasoning
	}

	tier := drug.Tier
	requiresPA := drug.RequiresPA.Required()
	return domain.RecommendationOutput{
		Type:           recType,
		DrugName:       drug.DrugName,
		Cost:           EstimateTierSwitch(currentTier, drug.Tier),
		Rationale:      rationale,
		MonitoringPlan: monitoringPlanFor(recType),
		Tier:           &tier,
		RequiresPA:     &requiresPA,
	}
}

// differentMechanismSwitch proposes the best-ranked safe candidate in a
// different drug class, for flares the current mechanism is not holding.
func (e *RecommendationEngine) differentMechanismSwitch(
	ctx context.Context,
	current *domain.CurrentBiologic,
	currentTier int,
	safe []domain.FormularyDrug,
	profile domain.ClinicalProfile,
) *domain.RecommendationOutput {
	currentClass := ""
	for _, drug := range safe {
		if drug.Matches(current.DrugName) {
			currentClass = normalizeDrugClass(drug.DrugClass)
			break
		}
	}

	var candidates []domain.FormularyDrug
	for _, drug := range safe {
		if drug.Matches(current.DrugName) {
			continue
		}
		if currentClass != "" && normalizeDrugClass(drug.DrugClass) == currentClass {
			continue
		}
		candidates = append(candidates, drug)
	}
	if len(candidates) == 0 {
		return nil
	}

	ranked := e.rankTierGroup(ctx, candidates, current.DrugName, profile)
	best := ranked[0]

	tier := best.Drug.Tier
	requiresPA := best.Drug.RequiresPA.Required()
	rationale := fmt.Sprintf(
		"Inadequate response to %s at standard dosing (DLQI %d); %s offers a different mechanism (%s) indicated for %s.",
		current.DrugName, profile.DLQIScore, best.Drug.DrugName, best.Drug.DrugClass, profile.Diagnosis.String())
	if best.Reasoning != "" {
		rationale = rationale + " " + best.Reasoning
	}
	return &domain.RecommendationOutput{
		Type:           domain.THERAPEUTIC_SWITCH,
		DrugName:       best.Drug.DrugName,
		Cost:           EstimateTierSwitch(currentTier, best.Drug.Tier),
		Rationale:      rationale,
		MonitoringPlan: monitoringPlanFor(domain.THERAPEUTIC_SWITCH),
		Tier:           &tier,
		RequiresPA:     &requiresPA,
	}
}

// bestAlternative ranks the safe candidates the admit filter passes and
// renders the top one from the lowest admitted tier as a switch-style
// alternative. Nil when nothing qualifies; callers then fall back to a
// reassessment recommendation instead.
func (e *RecommendationEngine) bestAlternative(
	ctx context.Context,
	current *domain.CurrentBiologic,
	currentTier int,
	safe []domain.FormularyDrug,
	profile domain.ClinicalProfile,
	admit func(domain.FormularyDrug) bool,
) *domain.RecommendationOutput {
	byTier := map[int][]domain.FormularyDrug{}
	var tiers []int
	for _, drug := range safe {
		if drug.Matches(current.DrugName) || !admit(drug) {
			continue
		}
		if _, seen := byTier[drug.Tier]; !seen {
			tiers = append(tiers, drug.Tier)
		}
		byTier[drug.Tier] = append(byTier[drug.Tier], drug)
	}
	if len(tiers) == 0 {
		return nil
	}
	sort.Ints(tiers)

	ranked := e.rankTierGroup(ctx, byTier[tiers[0]], current.DrugName, profile)
	best := ranked[0]

	recType := domain.SWITCH_TO_PREFERRED
	if best.Drug.IsBiosimilarOf(current.DrugName) {
		recType = domain.SWITCH_TO_BIOSIMILAR
	}
	rationale := fmt.Sprintf(
		"Disease controlled (DLQI %d); %s (tier %d, %s) is the preferred indicated alternative should a change from %s be needed.",
		profile.DLQIScore, best.Drug.DrugName, best.Drug.Tier, best.Drug.DrugClass, current.DrugName)
	if best.Reasoning != "" {
		rationale = rationale + " " + best.Reasoning
	}

	tier := best.Drug.Tier
	requiresPA := best.Drug.RequiresPA.Required()
	return &domain.RecommendationOutput{
		Type:           recType,
		DrugName:       best.Drug.DrugName,
		Cost:           EstimateTierSwitch(currentTier, best.Drug.Tier),
		Rationale:      rationale,
		MonitoringPlan: monitoringPlanFor(recType),
		Tier:           &tier,
		RequiresPA:     &requiresPA,
	}
}

// doseReductionRec renders a step to the next approved interval extension,
// backed by evidence sources and the dose-scaled cost estimate.
func (e *RecommendationEngine) doseReductionRec(
	ctx context.Context,
	current *domain.CurrentBiologic,
	currentTier int,
	from, to domain.DoseReductionLevel,
	profile domain.ClinicalProfile,
) domain.RecommendationOutput {
	rationale := fmt.Sprintf(
		"Sustained control (DLQI %d for %d months) on %s supports extending the dosing interval from %s to a %d%% reduction.",
		profile.DLQIScore, profile.MonthsStable, current.DrugName, describeDoseLevel(from), to.Percent())

	return domain.RecommendationOutput{
		Type:            domain.DOSE_REDUCTION,
		DrugName:        current.DrugName,
		NewDose:         current.Dose,
		NewFrequency:    frequencyAtLevel(current.DrugName, to),
		Cost:            EstimateDoseReduction(currentTier, to),
		Rationale:       rationale,
		EvidenceSources: e.doseReductionEvidence(ctx, current.DrugName, profile.Diagnosis),
		MonitoringPlan:  monitoringPlanFor(domain.DOSE_REDUCTION),
	}
}

// returnToStandardRec restores the labeled maintenance schedule; the
// caller supplies the quadrant-specific rationale.
func (e *RecommendationEngine) returnToStandardRec(current *domain.CurrentBiologic, rationale string) domain.RecommendationOutput {
	return domain.RecommendationOutput{
		Type:           domain.OPTIMIZE_CURRENT,
		DrugName:       current.DrugName,
		NewDose:        current.Dose,
		NewFrequency:   frequencyAtLevel(current.DrugName, domain.DoseStandard),
		Rationale:      rationale,
		MonitoringPlan: monitoringPlanFor(domain.OPTIMIZE_CURRENT),
	}
}

// frequencyAtLevel renders the dosing frequency a reduction level implies
// for a drug, empty when the drug is outside the maintenance table.
func frequencyAtLevel(drugName string, level domain.DoseReductionLevel) string {
	di, ok := StandardInterval(drugName)
	if !ok {
		return ""
	}
	interval := di.Interval
	if level != domain.DoseStandard {
		extended := float64(di.Interval) / (1 - float64(level.Percent())/100)
		interval = int(extended + 0.5)
	}
	return fmt.Sprintf("every %d %s", interval, di.Unit)
}

// doseReductionEvidence fetches titled sources for the rationale, falling
// back to fixed guideline citations when the searcher is absent or fails.
func (e *RecommendationEngine) doseReductionEvidence(ctx context.Context, drugName string, diagnosis domain.Diagnosis) []string {
	if e.searcher == nil {
		return guidelineCitations
	}
	query := fmt.Sprintf("%s dose reduction interval extension %s sustained remission",
		drugName, strings.ToLower(strings.ReplaceAll(diagnosis.String(), "_", " ")))
	sources, err := e.searcher.Search(ctx, query, len(guidelineCitations))
	if err != nil || len(sources) == 0 {
		e.log.WithFields(logrus.Fields{
			"query": query,
			"error": err,
		}).Warn("Evidence search unavailable, using guideline citations")
		return guidelineCitations
	}
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.URL != "" {
			out = append(out, fmt.Sprintf("%s (%s)", s.Title, s.URL))
		} else {
			out = append(out, s.Title)
		}
	}
	return out
}

// enforceSafety is the final invariant check: no recommendation may name a
// drug the contraindication filter excluded with ABSOLUTE severity, no
// matter which strategy produced it.
func (e *RecommendationEngine) enforceSafety(recs []domain.RecommendationOutput, excluded []domain.ContraindicatedDrug) []domain.RecommendationOutput {
	absolute := map[string]bool{}
	for _, c := range excluded {
		if !c.HasAbsolute() {
			continue
		}
		absolute[strings.ToLower(c.Drug.DrugName)] = true
		if c.Drug.GenericName != "" {
			absolute[strings.ToLower(c.Drug.GenericName)] = true
		}
	}
	if len(absolute) == 0 {
		return recs
	}

	kept := recs[:0]
	for _, rec := range recs {
		if absolute[strings.ToLower(rec.DrugName)] {
			e.log.WithField("drug", rec.DrugName).Error("Dropped recommendation naming an absolutely contraindicated drug")
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// finalizeRanks truncates to the output cap and assigns contiguous ranks.
func finalizeRanks(recs []domain.RecommendationOutput) []domain.RecommendationOutput {
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	for i := range recs {
		recs[i].Rank = i + 1
	}
	return recs
}

// monitoringPlanFor maps a recommendation type to its follow-up plan.
func monitoringPlanFor(t domain.RecommendationType) string {
	switch t {
	case domain.DOSE_REDUCTION:
		return "DLQI at 4, 12, and 24 weeks after interval extension; return to prior dosing if DLQI rises above 4 or new lesions appear"
	case domain.CONTINUE_CURRENT:
		return "Routine DLQI reassessment every 3 months; annual labs per drug class"
	case domain.SWITCH_TO_PREFERRED, domain.SWITCH_TO_BIOSIMILAR:
		return "Baseline labs before switch; DLQI at 4 and 12 weeks on the new agent to confirm retained response"
	case domain.THERAPEUTIC_SWITCH:
		return "Washout per labeling if required; tuberculosis and hepatitis screening before the new mechanism; DLQI at 4, 12, and 16 weeks"
	case domain.OPTIMIZE_CURRENT:
		return "Adherence review at next refill; DLQI reassessment in 8 weeks"
	default:
		return ""
	}
}

func describeDoseLevel(l domain.DoseReductionLevel) string {
	if l == domain.DoseStandard {
		return "standard dosing"
	}
	return fmt.Sprintf("a %d%% reduction", l.Percent())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
