package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hossein1376/walletauth"
	"github.com/hossein1376/walletauth/internal/identity"
)

const tokenHeader = "token"

type result struct {
	Result any `json:"result"`
}

type errorBody struct {
	Error      string   `json:"error"`
	Code       string   `json:"code"`
	Details    string   `json:"details,omitempty"`
	Missing    []string `json:"missing,omitempty"`
	Unexpected []string `json:"unexpected,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Web3 User Authentication Service",
		"version": Version,
		"endpoints": []string{
			"/health", "/getUserId", "/getUserToken", "/getUserTokenByMemo", "/checkUserToken",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "ok",
		"uptime":   time.Since(s.started).Seconds(),
		"bin_name": Name,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "Endpoint not found", Code: "not-found"})
}

func (s *Server) handleGetUserID(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, []string{"address"}, false)
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	uid, err := s.service.UserID(fields["address"])
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, result{Result: uid})
}

func (s *Server) handleGetUserToken(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, []string{"address", "signature", "uid"}, true)
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	s.issue(w, r, walletauth.IssueRequest{
		Address: fields["address"],
		UID:     fields["uid"],
		Proof:   walletauth.DirectProof{Signature: fields["signature"]},
	})
}

func (s *Server) handleGetUserTokenByMemo(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, []string{"address", "uid", "transaction"}, true)
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	s.issue(w, r, walletauth.IssueRequest{
		Address: fields["address"],
		UID:     fields["uid"],
		Proof:   walletauth.TransactionProof{Transaction: fields["transaction"]},
	})
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, req walletauth.IssueRequest) {
	issued, err := s.service.Issue(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, result{Result: issued.Token})
}

// handleCheckUserToken takes the token from the JSON body when there is one,
// and from the token header otherwise.
func (s *Server) handleCheckUserToken(w http.ResponseWriter, r *http.Request) {
	var tok string
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		var body map[string]json.RawMessage
		if err := decodeBody(w, r, &body); err != nil {
			s.writeError(w, r, err, true)
			return
		}
		v, _, ok := stringField(body, "token")
		if !ok {
			s.writeError(w, r, fieldTypeError([]string{"token"}), false)
			return
		}
		tok = v
	}
	if tok == "" {
		tok = r.Header.Get(tokenHeader)
	}
	if tok == "" {
		source := "header"
		if r.Method == http.MethodPost {
			source = "body"
		}
		s.writeError(w, r, &walletauth.Error{
			Kind:   walletauth.KindMissingFields,
			Detail: "token must be provided in " + source,
		}, true)
		return
	}

	id, err := s.service.Check(r.Context(), tok)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, result{Result: id})
}

// fieldsError lists offending field names alongside the rejection.
type fieldsError struct {
	err        *walletauth.Error
	missing    []string
	unexpected []string
}

func (e *fieldsError) Error() string {
	return e.err.Error()
}

func (e *fieldsError) Unwrap() error {
	return e.err
}

// fieldTypeErrors rejects a field holding a non-string value the same way as
// an invalid string, in the order the service validates fields.
var fieldTypeErrors = []struct {
	name string
	err  walletauth.Error
}{
	{"address", walletauth.Error{Kind: walletauth.KindInvalidAddress, Detail: identity.ErrEmptyAddress.Error()}},
	{"uid", walletauth.Error{Kind: walletauth.KindUIDMismatch, Detail: "uid must be a string"}},
	{"signature", walletauth.Error{Kind: walletauth.KindInvalidSignature, Detail: "signature must be a string"}},
	{"transaction", walletauth.Error{Kind: walletauth.KindMalformedTransaction, Detail: "transaction must be a string"}},
	{"token", walletauth.Error{Kind: walletauth.KindInvalidToken, Detail: "token must be a string"}},
}

func fieldTypeError(wrong []string) error {
	for _, f := range fieldTypeErrors {
		if slices.Contains(wrong, f.name) {
			e := f.err
			return &e
		}
	}
	return &walletauth.Error{
		Kind:   walletauth.KindInvalidJSON,
		Detail: "field " + wrong[0] + " must be a string",
	}
}

// stringField reads name from body. present is false for an absent or null
// field; ok is false when the value is not a JSON string.
func stringField(body map[string]json.RawMessage, name string) (v string, present, ok bool) {
	raw, found := body[name]
	if !found || string(raw) == "null" {
		return "", false, true
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", true, false
	}
	return v, true, true
}

// readFields decodes a flat JSON object of string fields. Every name in
// required must be present and non-empty; when strict is set, no other name
// may appear. Missing and unexpected fields are reported before values of the
// wrong type.
func readFields(w http.ResponseWriter, r *http.Request, required []string, strict bool) (map[string]string, error) {
	var body map[string]json.RawMessage
	if err := decodeBody(w, r, &body); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(required))
	var missing, wrong []string
	for _, name := range required {
		v, present, ok := stringField(body, name)
		switch {
		case !ok:
			wrong = append(wrong, name)
		case !present || v == "":
			missing = append(missing, name)
		default:
			fields[name] = v
		}
	}
	if len(missing) > 0 {
		return nil, &fieldsError{
			err:     &walletauth.Error{Kind: walletauth.KindMissingFields},
			missing: missing,
		}
	}

	if strict {
		var extra []string
		for name := range body {
			if !slices.Contains(required, name) {
				extra = append(extra, name)
			}
		}
		if len(extra) > 0 {
			sort.Strings(extra)
			return nil, &fieldsError{
				err: &walletauth.Error{
					Kind:   walletauth.KindUnexpectedFields,
					Detail: "unexpected fields: " + strings.Join(extra, ", "),
				},
				unexpected: extra,
			}
		}
	}

	if len(wrong) > 0 {
		return nil, fieldTypeError(wrong)
	}
	return fields, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &walletauth.Error{Kind: walletauth.KindInvalidJSON, Detail: "request body too large", Err: err}
		}
		return &walletauth.Error{
			Kind:   walletauth.KindInvalidJSON,
			Detail: "request body contains malformed JSON",
			Err:    err,
		}
	}
	if dec.More() {
		return &walletauth.Error{Kind: walletauth.KindInvalidJSON, Detail: "request body contains trailing data"}
	}
	return nil
}

// writeError maps a rejection to its status and message. detailed controls
// whether the caller gets the reason; internal causes are only logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, detailed bool) {
	var e *walletauth.Error
	if !errors.As(err, &e) {
		e = &walletauth.Error{Kind: walletauth.KindInternal, Err: err}
	}
	status, message := describe(e.Kind)
	body := errorBody{Error: message, Code: string(e.Kind)}
	if detailed && e.Kind != walletauth.KindInternal {
		body.Details = e.Detail
	}
	var fe *fieldsError
	if errors.As(err, &fe) {
		body.Missing = fe.missing
		body.Unexpected = fe.unexpected
	}

	lvl := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		lvl = slog.LevelError
	}
	s.logger.Log(r.Context(), lvl,
		"request rejected",
		slog.String("request_id", requestID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("kind", string(e.Kind)),
		slog.Any("err", err),
	)
	writeJSON(w, status, body)
}

func describe(kind walletauth.Kind) (int, string) {
	switch kind {
	case walletauth.KindMissingFields:
		return http.StatusBadRequest, "Missing required fields"
	case walletauth.KindUnexpectedFields:
		return http.StatusBadRequest, "Extra fields not allowed"
	case walletauth.KindInvalidJSON:
		return http.StatusBadRequest, "Invalid JSON format"
	case walletauth.KindInvalidAddress:
		return http.StatusBadRequest, "Invalid address"
	case walletauth.KindUIDMismatch:
		return http.StatusBadRequest, "Invalid uid"
	case walletauth.KindInvalidSignature:
		return http.StatusBadRequest, "Invalid signature"
	case walletauth.KindMalformedTransaction,
		walletauth.KindAddressNotSigner,
		walletauth.KindSignatureMissing,
		walletauth.KindMemoMissing,
		walletauth.KindMemoMismatch:
		return http.StatusBadRequest, "Signature verification failed"
	case walletauth.KindInsufficientBalance:
		return http.StatusForbidden, "Insufficient balance"
	case walletauth.KindDependencyUnavailable:
		return http.StatusServiceUnavailable, "Balance check unavailable"
	case walletauth.KindInvalidToken:
		return http.StatusBadRequest, "Invalid or expired token"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
