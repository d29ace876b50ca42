package api

import (
	"chat_server/server/common/transport/httpresp"
)

type ErrorResponse = httpresp.ErrorResponse
type OKResponse = httpresp.OKResponse

type HealthResponse struct {
	Status string `json:"status"`
}

func NewHealthResponse(status string) HealthResponse {
	return HealthResponse{Status: status}
}

func NewErrorResponse(message string) ErrorResponse {
	return httpresp.NewErrorResponse(message)
}

func NewOKResponse() OKResponse {
	return httpresp.NewOKResponse()
}
