package handler

import (
	"platewatch/internal/audit"
	"platewatch/internal/consent/models"
)

type storeResponse struct {
	Record  *models.Record `json:"record"`
	Message string         `json:"message"`
}

type withdrawResponse struct {
	Record  *models.Record `json:"record"`
	Message string         `json:"message"`
}

type auditTrailResponse struct {
	Entries []audit.Entry `json:"entries"`
}
