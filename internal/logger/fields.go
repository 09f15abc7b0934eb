package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldProvider  = "ai_provider"
	FieldModel     = "ai_model"
	FieldOwner     = "owner_id"
	FieldJob       = "job_id"
	FieldResume    = "resume_id"
	FieldEvalID    = "evaluation_id"
	FieldActorRole = "actor_role"
)

// With attaches fields to log. A nil log becomes a no-op logger.
func With(log *zap.Logger, fields ...zap.Field) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}

// ForProvider tags log with the provider and model of an AI gateway.
func ForProvider(log *zap.Logger, provider, model string) *zap.Logger {
	return With(log, nonBlank(FieldProvider, provider, FieldModel, model)...)
}

// ForEvaluation tags log with the (owner, job, resume) triple an evaluation
// is keyed by.
func ForEvaluation(log *zap.Logger, ownerID, jobID, resumeID string) *zap.Logger {
	return With(log, nonBlank(FieldOwner, ownerID, FieldJob, jobID, FieldResume, resumeID)...)
}

// nonBlank turns key/value pairs into string fields. Values are trimmed and
// blank ones skipped.
func nonBlank(pairs ...string) []zap.Field {
	fields := make([]zap.Field, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if value := strings.TrimSpace(pairs[i+1]); value != "" {
			fields = append(fields, zap.String(pairs[i], value))
		}
	}
	return fields
}
