package endpoints

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type APIResponse struct {
	Status    bool        `json:"status"`
	Value     interface{} `json:"value,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode int         `json:"error_code"`
}

// WriteErrorResponseWithStatusCode writes err, reduced to its public form, in
// the JSON envelope.
func (res APIResponse) WriteErrorResponseWithStatusCode(w http.ResponseWriter, err error, statusCode int) {
	res.Status = false
	res.Error = PublicError(err).Error()
	res.ErrorCode = GetErrorCode(err)

	errJson, _ := json.Marshal(res)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(statusCode)
	w.Write(errJson)
}

func (res APIResponse) WriteErrorResponse(w http.ResponseWriter, err error) {
	res.WriteErrorResponseWithStatusCode(w, err, StatusCode(err))
}

func (res APIResponse) WriteResultResponse(w http.ResponseWriter, result interface{}) {
	res.Status = true
	res.Value = result
	res.ErrorCode = GetErrorCode(nil)

	resJson, _ := json.Marshal(res)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(resJson)
}

// WriteJSONResponse writes result as bare JSON, without the envelope.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, result interface{}) {
	body, err := json.Marshal(result)
	if err != nil {
		APIResponse{}.WriteErrorResponseWithStatusCode(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(statusCode)
	w.Write(body)
}

func WriteTextResponse(w http.ResponseWriter, statusCode int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(statusCode)
	w.Write([]byte(text))
}

func WriteImageResponse(w http.ResponseWriter, contentType string, img []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}
