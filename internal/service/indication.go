package service

import (
	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/domain"
)

// FilterByIndication restricts the formulary candidate set to drugs
// indicated for the diagnosis. Rows without an indication list pass the
// filter (legacy uploads predate indication capture) and are logged so
// incomplete data stays auditable.
func FilterByIndication(log *logrus.Logger, drugs []domain.FormularyDrug, diagnosis domain.Diagnosis) []domain.FormularyDrug {
	indicated := make([]domain.FormularyDrug, 0, len(drugs))
	for _, drug := range drugs {
		if !drug.IndicatedFor(diagnosis) {
			continue
		}
		if !drug.IndicationKnown() {
			log.WithFields(logrus.Fields{
				"drug":      drug.DrugName,
				"diagnosis": diagnosis.String(),
			}).Debug("Formulary row has no indication list, passing filter by legacy default")
		}
		indicated = append(indicated, drug)
	}
	return indicated
}
