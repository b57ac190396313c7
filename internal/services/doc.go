// Package services holds the error markers and context keys shared by the
// external-service adapters (LLM, detectors, speech) that the disposal session
// calls out to.
package services
