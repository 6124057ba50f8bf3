package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"caseflow/agreement"
	"caseflow/apperr"
	"caseflow/complaint"
	"caseflow/eventlog"
	"caseflow/grievance"
	"caseflow/resolution"
	"caseflow/sequence"
	"caseflow/steptemplate"
)

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "request body is not valid JSON", err)
	}
	return apperr.ValidateStruct(dst)
}

// parseTime accepts RFC 3339 timestamps and bare dates.
func parseTime(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.KindValidation, "%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", field)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func formatDecimal(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

func parseDecimal(field string, v *string) (decimal.NullDecimal, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*v))
	if err != nil {
		return decimal.NullDecimal{}, apperr.Newf(apperr.KindValidation, "%s must be a number", field)
	}
	return decimal.NewNullDecimal(d), nil
}

type caseResponse struct {
	ID                string              `json:"id"`
	CaseNumber        string              `json:"caseNumber"`
	Type              string              `json:"type"`
	Status            string              `json:"status"`
	Closed            bool                `json:"closed"`
	Stage             string              `json:"currentStage"`
	CurrentStepNumber int                 `json:"currentStepNumber"`
	Category          *string             `json:"category,omitempty"`
	ExternalID        *string             `json:"externalId,omitempty"`
	BargainingUnitID  string              `json:"bargainingUnitId"`
	AgreementID       *string             `json:"agreementId,omitempty"`
	AssignedToID      *string             `json:"assignedToId,omitempty"`
	FiledAt           string              `json:"filedAt"`
	Resolution        *resolution.Details `json:"resolutionDetails,omitempty"`
	EstimatedCost     *string             `json:"estimatedCost,omitempty"`
	ActualCost        *string             `json:"actualCost,omitempty"`
	CreatedAt         string              `json:"createdAt"`
	UpdatedAt         string              `json:"updatedAt"`
}

func toCaseResponse(c grievance.Case) caseResponse {
	return caseResponse{
		ID:                c.ID,
		CaseNumber:        c.CaseNumber,
		Type:              string(c.Type),
		Status:            string(c.Status),
		Closed:            c.Status.Terminal(),
		Stage:             string(c.CurrentStage),
		CurrentStepNumber: c.CurrentStepNumber,
		Category:          c.Category,
		ExternalID:        c.ExternalID,
		BargainingUnitID:  c.BargainingUnitID,
		AgreementID:       c.AgreementID,
		AssignedToID:      c.AssignedToID,
		FiledAt:           formatTime(c.FiledAt),
		Resolution:        c.Resolution,
		EstimatedCost:     formatDecimal(c.EstimatedCost),
		ActualCost:        formatDecimal(c.ActualCost),
		CreatedAt:         formatTime(c.CreatedAt),
		UpdatedAt:         formatTime(c.UpdatedAt),
	}
}

type stepResponse struct {
	ID            string  `json:"id"`
	StepNumber    int     `json:"stepNumber"`
	Stage         string  `json:"stage"`
	Status        string  `json:"status"`
	DueDate       string  `json:"dueDate"`
	CompletedDate *string `json:"completedDate,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	Overdue       bool    `json:"overdue"`
}

func toStepResponse(s grievance.Step, now time.Time) stepResponse {
	return stepResponse{
		ID:            s.ID,
		StepNumber:    s.StepNumber,
		Stage:         string(s.Stage),
		Status:        string(s.Status),
		DueDate:       formatTime(s.DueDate),
		CompletedDate: formatOptionalTime(s.CompletedDate),
		Notes:         s.Notes,
		Overdue:       s.Overdue(now),
	}
}

type reportResponse struct {
	Grievors          []grievance.Grievor       `json:"grievors"`
	WorkInformation   grievance.WorkInformation `json:"workInformation"`
	Statement         string                    `json:"statement"`
	SettlementDesired string                    `json:"settlementDesired"`
	ArticlesViolated  *string                   `json:"articlesViolated,omitempty"`
}

type detailResponse struct {
	Case        caseResponse   `json:"case"`
	Report      reportResponse `json:"report"`
	Steps       []stepResponse `json:"steps"`
	HasNextStep bool           `json:"hasNextStep"`
}

type createCaseRequest struct {
	BargainingUnitID  string                    `json:"bargainingUnitId"`
	AgreementID       string                    `json:"agreementId"`
	Type              string                    `json:"type" validate:"required"`
	Stage             string                    `json:"stage" validate:"required"`
	Category          *string                   `json:"category"`
	ExternalID        *string                   `json:"externalId"`
	AssignedToID      *string                   `json:"assignedToId"`
	FiledAt           string                    `json:"filedAt"`
	Grievors          []grievance.Grievor       `json:"grievors"`
	WorkInformation   grievance.WorkInformation `json:"workInformation"`
	Statement         string                    `json:"statement"`
	SettlementDesired string                    `json:"settlementDesired"`
	ArticlesViolated  *string                   `json:"articlesViolated"`
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	filedAt, err := parseTime("filedAt", req.FiledAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.cases.Create(r.Context(), actorFrom(r), grievance.CreateParams{
		BargainingUnitID: req.BargainingUnitID,
		AgreementID:      req.AgreementID,
		Type:             grievance.Type(strings.ToUpper(req.Type)),
		Stage:            grievance.Stage(strings.ToUpper(req.Stage)),
		Category:         req.Category,
		ExternalID:       req.ExternalID,
		AssignedToID:     req.AssignedToID,
		FiledAt:          filedAt,
		Report: grievance.ReportFields{
			Grievors:          req.Grievors,
			WorkInformation:   req.WorkInformation,
			Statement:         req.Statement,
			SettlementDesired: req.SettlementDesired,
			ArticlesViolated:  req.ArticlesViolated,
		},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCaseResponse(c))
}

type listItemResponse struct {
	caseResponse
	AssigneeName *string `json:"assigneeName,omitempty"`
	CreatorName  *string `json:"creatorName,omitempty"`
	CurrentStep  *struct {
		StepNumber int    `json:"stepNumber"`
		Stage      string `json:"stage"`
		Status     string `json:"status"`
		DueDate    string `json:"dueDate"`
	} `json:"currentStep,omitempty"`
	Overdue bool `json:"overdue"`
}

type listResponse struct {
	Items      []listItemResponse `json:"items"`
	TotalCount int                `json:"totalCount"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	res, err := s.lister.ListPage(r.Context(), actorFrom(r), page, pageSize, grievance.Filters{
		CaseNumber:   q.Get("caseNumber"),
		Category:     q.Get("category"),
		AssigneeName: q.Get("assignee"),
		CreatorName:  q.Get("creator"),
		GrievorName:  q.Get("grievor"),
		Status:       q.Get("status"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := listResponse{Items: make([]listItemResponse, 0, len(res.Items)), TotalCount: res.TotalCount, Page: res.Page, PageSize: res.PageSize}
	for _, it := range res.Items {
		item := listItemResponse{caseResponse: toCaseResponse(it.Case), AssigneeName: it.AssigneeName, Overdue: it.Overdue}
		if it.Creator != nil {
			name := it.Creator.FullName
			item.CreatorName = &name
		}
		if st := it.CurrentStep; st != nil {
			item.CurrentStep = &struct {
				StepNumber int    `json:"stepNumber"`
				Stage      string `json:"stage"`
				Status     string `json:"status"`
				DueDate    string `json:"dueDate"`
			}{st.StepNumber, string(st.Stage), string(st.Status), formatTime(st.DueDate)}
		}
		out.Items = append(out.Items, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	d, err := s.cases.Get(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	now := time.Now()
	steps := make([]stepResponse, 0, len(d.Steps))
	for _, st := range d.Steps {
		steps = append(steps, toStepResponse(st, now))
	}
	writeJSON(w, http.StatusOK, detailResponse{
		Case: toCaseResponse(d.Case),
		Report: reportResponse{
			Grievors:          d.Report.Grievors.Items,
			WorkInformation:   d.Report.WorkInformation,
			Statement:         d.Report.Statement,
			SettlementDesired: d.Report.SettlementDesired,
			ArticlesViolated:  d.Report.ArticlesViolated,
		},
		Steps:       steps,
		HasNextStep: d.HasNextStep,
	})
}

func (s *Server) handleDeleteCase(w http.ResponseWriter, r *http.Request) {
	if err := s.cases.Delete(r.Context(), actorFrom(r), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type advanceRequest struct {
	StepNumber int     `json:"stepNumber" validate:"required,gt=0"`
	Stage      string  `json:"stage" validate:"required"`
	DueDate    string  `json:"dueDate"`
	Notes      *string `json:"notes"`
}

func (s *Server) handleAdvanceStep(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	due, err := parseTime("dueDate", req.DueDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	step, err := s.cases.AdvanceStep(r.Context(), actorFrom(r), grievance.AdvanceParams{
		CaseID:     mux.Vars(r)["id"],
		StepNumber: req.StepNumber,
		Stage:      grievance.Stage(strings.ToUpper(req.Stage)),
		DueDate:    due,
		Notes:      req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStepResponse(step, time.Now()))
}

type updateStepRequest struct {
	Status        *string `json:"status"`
	Notes         *string `json:"notes"`
	CompletedDate *string `json:"completedDate"`
}

func (s *Server) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	var req updateStepRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p := grievance.UpdateStepParams{StepID: mux.Vars(r)["id"], Notes: req.Notes}
	if req.Status != nil {
		st := grievance.StepStatus(strings.ToUpper(*req.Status))
		p.Status = &st
	}
	if req.CompletedDate != nil {
		at, err := parseTime("completedDate", *req.CompletedDate)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !at.IsZero() {
			p.CompletedDate = &at
		}
	}

	step, err := s.cases.UpdateStep(r.Context(), actorFrom(r), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStepResponse(step, time.Now()))
}

type assigneeRequest struct {
	AssigneeID *string `json:"assigneeId"`
}

func (s *Server) handleChangeAssignee(w http.ResponseWriter, r *http.Request) {
	var req assigneeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.cases.ChangeAssignee(r.Context(), actorFrom(r), mux.Vars(r)["id"], req.AssigneeID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseResponse(c))
}

type statusRequest struct {
	Status     string          `json:"status" validate:"required"`
	Stage      *string         `json:"stage"`
	Outcomes   *string         `json:"outcomes"`
	Resolution json.RawMessage `json:"resolutionDetails"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	supplied, err := resolution.Parse(req.Resolution)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := grievance.StatusParams{
		CaseID:     mux.Vars(r)["id"],
		Status:     grievance.Status(strings.ToUpper(req.Status)),
		Outcomes:   req.Outcomes,
		Resolution: supplied,
	}
	if req.Stage != nil {
		stage := grievance.Stage(strings.ToUpper(*req.Stage))
		p.Stage = &stage
	}

	c, err := s.cases.UpdateStatus(r.Context(), actorFrom(r), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseResponse(c))
}

type fieldRequest struct {
	Field string  `json:"field" validate:"required,oneof=statement articlesViolated settlementDesired"`
	Value *string `json:"value"`
}

type fieldResponse struct {
	Field    string  `json:"field"`
	Previous *string `json:"previous"`
	New      *string `json:"new"`
}

func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	change, err := s.cases.UpdateField(r.Context(), actorFrom(r), grievance.FieldParams{
		CaseID: mux.Vars(r)["id"],
		Field:  grievance.Field(req.Field),
		Value:  req.Value,
		Audit:  true,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fieldResponse{Field: string(change.Field), Previous: change.Previous, New: change.New})
}

type costsRequest struct {
	EstimatedCost *string `json:"estimatedCost"`
	ActualCost    *string `json:"actualCost"`
}

func (s *Server) handleUpdateCosts(w http.ResponseWriter, r *http.Request) {
	var req costsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	est, err := parseDecimal("estimatedCost", req.EstimatedCost)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	act, err := parseDecimal("actualCost", req.ActualCost)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.cases.UpdateCosts(r.Context(), actorFrom(r), mux.Vars(r)["id"], est, act)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseResponse(c))
}

type eventResponse struct {
	ID        string  `json:"id"`
	Type      string  `json:"eventType"`
	Known     bool    `json:"known"`
	Previous  string  `json:"previousValue"`
	New       string  `json:"newValue"`
	UserID    string  `json:"userId"`
	UserName  *string `json:"userName,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.cases.Events(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	names := s.userNames(r, events)

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		item := eventResponse{
			ID:        e.ID,
			Type:      string(e.Type),
			Known:     e.Type.IsKnown(),
			Previous:  e.Previous,
			New:       e.New,
			UserID:    e.UserID,
			CreatedAt: formatTime(e.CreatedAt),
		}
		if name, ok := names[e.UserID]; ok {
			item.UserName = &name
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

// userNames resolves event authors through a request-scoped loader. Missing
// users are left unnamed.
func (s *Server) userNames(r *http.Request, events []eventlog.Event) map[string]string {
	names := map[string]string{}
	if s.userLoader == nil || len(events) == 0 {
		return names
	}
	seen := map[string]bool{}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}
	found, errs := s.userLoader().LoadMany(r.Context(), ids)
	for i, u := range found {
		if len(errs) > i && errs[i] != nil {
			continue
		}
		names[u.ID] = u.FullName
	}
	return names
}

type createComplaintRequest struct {
	BargainingUnitID  string                    `json:"bargainingUnitId"`
	AgreementID       *string                   `json:"agreementId"`
	Complainant       grievance.Grievor         `json:"complainant"`
	WorkInformation   grievance.WorkInformation `json:"workInformation"`
	Statement         string                    `json:"statement"`
	SettlementDesired string                    `json:"settlementDesired"`
	ArticlesViolated  *string                   `json:"articlesViolated"`
}

type complaintResponse struct {
	ID          string  `json:"id"`
	Number      string  `json:"complaintNumber"`
	Status      string  `json:"status"`
	AgreementID *string `json:"agreementId,omitempty"`
	CaseID      *string `json:"caseId,omitempty"`
	CreatedAt   string  `json:"createdAt"`
}

func toComplaintResponse(c complaint.Complaint) complaintResponse {
	return complaintResponse{
		ID:          c.ID,
		Number:      c.Number,
		Status:      string(c.Status),
		AgreementID: c.AgreementID,
		CaseID:      c.CaseID,
		CreatedAt:   formatTime(c.CreatedAt),
	}
}

func (s *Server) handleCreateComplaint(w http.ResponseWriter, r *http.Request) {
	var req createComplaintRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.complaints.Create(r.Context(), actorFrom(r), complaint.CreateParams{
		BargainingUnitID:  req.BargainingUnitID,
		AgreementID:       req.AgreementID,
		Complainant:       req.Complainant,
		WorkInformation:   req.WorkInformation,
		Statement:         req.Statement,
		SettlementDesired: req.SettlementDesired,
		ArticlesViolated:  req.ArticlesViolated,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toComplaintResponse(c))
}

func (s *Server) handleGetComplaint(w http.ResponseWriter, r *http.Request) {
	c, err := s.complaints.Get(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toComplaintResponse(c))
}

type convertResponse struct {
	CaseID string `json:"caseId"`
	IsNew  bool   `json:"isNew"`
}

func (s *Server) handleConvertComplaint(w http.ResponseWriter, r *http.Request) {
	res, err := s.elevator.Convert(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.IsNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, convertResponse{CaseID: res.CaseID, IsNew: res.IsNew})
}

type sequenceResponse struct {
	Kind   string `json:"kind"`
	Value  int64  `json:"value"`
	Number string `json:"number"`
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	kind, err := sequence.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor := actorFrom(r)
	if err := actor.Require(); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.sequences.AllocateNext(r.Context(), actor.OrganizationID, kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sequenceResponse{Kind: kind.String(), Value: n, Number: sequence.Format(kind, n)})
}

type agreementResponse struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	BargainingUnitID *string `json:"bargainingUnitId,omitempty"`
	EffectiveFrom    *string `json:"effectiveFrom,omitempty"`
	EffectiveTo      *string `json:"effectiveTo,omitempty"`
}

func toAgreementResponse(a agreement.Agreement) agreementResponse {
	return agreementResponse{
		ID:               a.ID,
		Name:             a.Name,
		BargainingUnitID: a.BargainingUnitID,
		EffectiveFrom:    formatOptionalTime(a.EffectiveFrom),
		EffectiveTo:      formatOptionalTime(a.EffectiveTo),
	}
}

func (s *Server) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	list, err := s.agreements.List(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]agreementResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAgreementResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

type templateResponse struct {
	ID                   string   `json:"id"`
	Type                 string   `json:"type"`
	Stage                string   `json:"stage"`
	StepNumber           int      `json:"stepNumber"`
	TimeLimitDays        int      `json:"timeLimitDays"`
	IsCalendarDays       bool     `json:"isCalendarDays"`
	RequiredParticipants []string `json:"requiredParticipants"`
	RequiredDocuments    []string `json:"requiredDocuments"`
	Description          string   `json:"description"`
	FallbackFrom         string   `json:"fallbackFrom,omitempty"`
}

func toTemplateResponse(t steptemplate.Template) templateResponse {
	return templateResponse{
		ID:                   t.ID,
		Type:                 t.Type,
		Stage:                t.Stage,
		StepNumber:           t.StepNumber,
		TimeLimitDays:        t.TimeLimitDays,
		IsCalendarDays:       t.IsCalendarDays,
		RequiredParticipants: t.RequiredParticipants,
		RequiredDocuments:    t.RequiredDocuments,
		Description:          t.Description,
		FallbackFrom:         t.FallbackFrom,
	}
}

func (s *Server) handleInitialStep(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	caseType, stage := strings.ToUpper(q.Get("type")), strings.ToUpper(q.Get("stage"))
	if caseType == "" || stage == "" {
		s.writeError(w, r, apperr.Validation("type and stage query parameters are required"))
		return
	}
	tpl, err := s.agreements.InitialStep(r.Context(), actorFrom(r), mux.Vars(r)["id"], caseType, stage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.agreements.Templates(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]templateResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTemplateResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}
