package engine

import "platewatch/internal/consent/models"

// defaultRequiredConsents maps each data-processing operation to the
// consent types it needs. Operations without an entry require analytics
// consent; explicit configuration overrides take precedence over this table.
var defaultRequiredConsents = map[string][]models.ConsentType{
	models.OperationUpload:     {models.TypeUpload, models.TypeDataStorage},
	models.OperationAnalysis:   {models.TypeVC, models.TypeAIProcessing},
	models.OperationProcessing: {models.TypeAIProcessing, models.TypeDataStorage},
	models.OperationStorage:    {models.TypeDataStorage},
	models.OperationSharing:    {models.TypeThirdPartySharing},
}

// requiredFor resolves the consent types a request must hold. A request
// that names explicit consent types asks exactly for those; otherwise the
// configured per-operation override applies, then the default table.
func (e *Engine) requiredFor(req models.VerificationRequest) []models.ConsentType {
	if len(req.ConsentTypes) > 0 {
		return req.ConsentTypes
	}
	if types, ok := e.cfg.RequiredConsents[req.Operation]; ok {
		return types
	}
	if types, ok := defaultRequiredConsents[req.Operation]; ok {
		return types
	}
	return []models.ConsentType{models.TypeAnalytics}
}
