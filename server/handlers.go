package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/ehr-auth-broker/clinical"
	"github.com/jrsteele09/ehr-auth-broker/oauthmodel"
	"github.com/jrsteele09/ehr-auth-broker/recordstore"
)

// Acquired datasets carry base64 attachments and can be large.
const maxDatasetBody = 256 << 20

// SelectRecordPageData contains data for rendering the record selection page
type SelectRecordPageData struct {
	AppName          string
	RequestID        string
	Records          []recordstore.RecordInfo
	SessionFromDBURL string
	NewFlowURL       string
}

// SelectRecordPage lists stored records. It only reads the request id; the request is
// consumed by whichever branch the human picks.
func (s *Server) SelectRecordPage() http.HandlerFunc {
	tmpl := mustParseTemplate("select_record.html")

	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.URL.Query().Get("requestId")
		if requestID == "" {
			s.renderError(w, r, oauthmodel.NewError(oauthmodel.InvalidRequest, "requestId is required"))
			return
		}

		records, err := s.auth.ListRecords()
		if err != nil {
			log.Err(err).Msg("failed to list stored records")
			records = nil
		}

		renderTemplate(w, tmpl, http.StatusOK, SelectRecordPageData{
			AppName:          s.config.GetAppName(),
			RequestID:        requestID,
			Records:          records,
			SessionFromDBURL: RouteInitiateSessionFromDB,
			NewFlowURL:       RouteInitiateNewEHRFlow,
		})
	}
}

// InitiateSessionFromDB finishes an authorization with a stored record
func (s *Server) InitiateSessionFromDB() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		redirect, err := s.auth.SelectRecord(r.Context(), q.Get("requestId"), q.Get("databaseId"))
		if err != nil {
			s.redirectError(w, r, err)
			return
		}
		s.clientRedirect(w, r, redirect)
	}
}

// InitiateNewEHRFlow starts an acquisition and hands the browser to it
func (s *Server) InitiateNewEHRFlow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, err := s.auth.StartAcquisition(r.URL.Query().Get("requestId"))
		if err != nil {
			s.redirectError(w, r, err)
			return
		}

		entryURL, err := s.launcher.EntryURL(r.Context(), flow.FlowID)
		if err != nil {
			log.Err(err).Str("flow_id", flow.FlowID).Msg("failed to resolve acquisition entry point")
			s.redirectError(w, r, s.auth.AbortAcquisition(flow.FlowID,
				oauthmodel.WrapError(oauthmodel.ServerError, "upstream provider discovery failed", err)))
			return
		}

		if err := s.setFlowCookie(w, r, flow.FlowID); err != nil {
			s.launcher.Forget(flow.FlowID)
			s.redirectError(w, r, s.auth.AbortAcquisition(flow.FlowID,
				oauthmodel.WrapError(oauthmodel.ServerError, "failed to start acquisition", err)))
			return
		}

		log.Debug().Str("flow_id", flow.FlowID).Str("client_id", flow.ClientID).Msg("acquisition started")
		http.Redirect(w, r, entryURL, http.StatusFound)
	}
}

// EHRCallbackPageData contains data for rendering the acquisition hand-off page
type EHRCallbackPageData struct {
	AppName    string
	ForwardURL string
}

// EHRCallback receives the upstream provider's redirect and forwards the browser to the
// acquisition app.
func (s *Server) EHRCallback() http.HandlerFunc {
	tmpl := mustParseTemplate("ehr_callback.html")

	return func(w http.ResponseWriter, r *http.Request) {
		data := EHRCallbackPageData{AppName: s.config.GetAppName()}

		// The acquisition app runs the upstream dance itself; pass everything through.
		if !s.launcher.Configured() {
			data.ForwardURL = s.launcher.RetrieverURL(nil)
			if r.URL.RawQuery != "" {
				data.ForwardURL += "#" + r.URL.RawQuery
			}
			renderTemplate(w, tmpl, http.StatusOK, data)
			return
		}

		q := r.URL.Query()
		flowID, err := s.readFlowCookie(r)
		if err != nil || flowID != q.Get("state") {
			log.Warn().Err(err).Msg("upstream callback does not match the acquisition flow cookie")
			s.clearFlowCookie(w, r)
			s.renderError(w, r, oauthmodel.NewError(oauthmodel.InvalidRequest, "acquisition flow is missing or does not match"))
			return
		}

		if upstreamErr := q.Get("error"); upstreamErr != "" {
			s.clearFlowCookie(w, r)
			s.launcher.Forget(flowID)
			s.redirectError(w, r, s.auth.AbortAcquisition(flowID,
				oauthmodel.Errorf(oauthmodel.AccessDenied, "upstream provider returned %s", upstreamErr)))
			return
		}

		handoff, err := s.launcher.Exchange(r.Context(), flowID, q.Get("code"))
		if err != nil {
			log.Err(err).Str("flow_id", flowID).Msg("upstream token exchange failed")
			s.clearFlowCookie(w, r)
			s.redirectError(w, r, s.auth.AbortAcquisition(flowID,
				oauthmodel.WrapError(oauthmodel.ServerError, "upstream token exchange failed", err)))
			return
		}

		data.ForwardURL = s.launcher.RetrieverURL(handoff)
		renderTemplate(w, tmpl, http.StatusOK, data)
	}
}

// RetrieverCallbackResponse is the payload returned to the acquisition app
type RetrieverCallbackResponse struct {
	Success    bool   `json:"success"`
	RedirectTo string `json:"redirectTo,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RetrieverCallback completes an acquisition with the delivered dataset. It is called
// with fetch, so the client redirect is returned in the body rather than as a 302.
func (s *Server) RetrieverCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowID, err := s.readFlowCookie(r)
		s.clearFlowCookie(w, r)
		if err != nil {
			log.Debug().Err(err).Msg("retriever callback without a valid flow cookie")
			writeCallbackResult(w, http.StatusBadRequest, RetrieverCallbackResponse{
				Error: "acquisition flow cookie is missing or invalid",
			})
			return
		}
		s.launcher.Forget(flowID)

		dataset, err := clinical.Decode(http.MaxBytesReader(w, r.Body, maxDatasetBody))
		if err != nil {
			log.Warn().Err(err).Str("flow_id", flowID).Msg("retriever delivered an unreadable dataset")
			dataset = nil
		}

		redirect, err := s.auth.CompleteAcquisition(r.Context(), flowID, dataset)
		if err != nil {
			oauthErr := oauthmodel.AsError(err)
			result := RetrieverCallbackResponse{Error: oauthErr.Description}
			var redirectErr *oauthmodel.RedirectError
			if errors.As(err, &redirectErr) {
				result.RedirectTo, _ = redirectErr.Location()
			}
			writeCallbackResult(w, oauthErr.Status(), result)
			return
		}

		location, ok := redirect.URL()
		if !ok {
			writeCallbackResult(w, http.StatusInternalServerError, RetrieverCallbackResponse{
				Error: "client redirect_uri is not a valid URL",
			})
			return
		}
		writeCallbackResult(w, http.StatusOK, RetrieverCallbackResponse{Success: true, RedirectTo: location})
	}
}

// SessionSummaryResponse describes what a bearer token gives access to
type SessionSummaryResponse struct {
	ClientID    string         `json:"client_id"`
	Scopes      []string       `json:"scopes"`
	Persistent  bool           `json:"persistent"`
	Resources   map[string]int `json:"resources"`
	Attachments int            `json:"attachments"`
}

// SessionSummary materializes the session behind the bearer token and counts its contents
func (s *Server) SessionSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, store, err := s.auth.OpenSessionStore(r.Context(), accessTokenFromContext(r.Context()))
		if err != nil {
			writeJSONError(w, oauthmodel.AsError(err))
			return
		}

		summary, err := store.Summary(r.Context())
		if err != nil {
			log.Err(err).Msg("failed to summarise session store")
			writeJSONError(w, oauthmodel.WrapError(oauthmodel.ServerError, "failed to read session store", err))
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(SessionSummaryResponse{
			ClientID:    session.ClientID(),
			Scopes:      session.Scopes(),
			Persistent:  !store.IsMemory(),
			Resources:   summary.Resources,
			Attachments: summary.Attachments,
		})
	}
}

func (s *Server) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// clientRedirect sends the browser back to the client with code and state
func (s *Server) clientRedirect(w http.ResponseWriter, r *http.Request, redirect *oauthmodel.ClientRedirect) {
	location, ok := redirect.URL()
	if !ok {
		s.renderError(w, r, oauthmodel.NewError(oauthmodel.ServerError, "client redirect_uri is not a valid URL"))
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// redirectError reports err to the client's redirect_uri when it is known, otherwise
// renders it to the browser.
func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, err error) {
	var redirectErr *oauthmodel.RedirectError
	if errors.As(err, &redirectErr) {
		if location, ok := redirectErr.Location(); ok {
			http.Redirect(w, r, location, http.StatusFound)
			return
		}
	}
	s.renderError(w, r, oauthmodel.AsError(err))
}

// ErrorPageData contains data for rendering a browser-facing error
type ErrorPageData struct {
	AppName     string
	Error       string
	Description string
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err *oauthmodel.Error) {
	logError(r.Method, r.URL.Path, err.Error())
	renderTemplate(w, s.errorPage, err.Status(), ErrorPageData{
		AppName:     s.config.GetAppName(),
		Error:       string(err.Code),
		Description: err.Description,
	})
}

func writeCallbackResult(w http.ResponseWriter, status int, result RetrieverCallbackResponse) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}
