package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// StubSubscriber is the stub's record of a subscriber.
type StubSubscriber struct {
	ID                       string
	Email                    string
	Firstname                string
	Lastname                 string
	Status                   string
	TransactionalEmailStatus string
	Fields                   map[string]string
	Groups                   []string
	TriggerAutomation        bool
}

func (s StubSubscriber) clone() StubSubscriber {
	out := s
	out.Fields = make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		out.Fields[k] = v
	}
	out.Groups = slices.Clone(s.Groups)
	return out
}

type stubGroup struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type stubFailure struct {
	status int
	times  int
	header http.Header
}

// SenderStub is an in-memory fake of the Sender.net v2 API served over httptest.
//
// Every request is counted under "METHOD /route" keys such as "GET /subscribers", "GET /subscribers/{id}",
// "POST /subscribers", "PATCH /subscribers/{id}", "DELETE /subscribers", "GET /groups", "GET /groups/{id}"
// and "POST /groups".
type SenderStub struct {
	Server *httptest.Server
	Token  string

	mu          sync.Mutex
	subscribers []*StubSubscriber
	groups      []stubGroup
	calls       map[string]int
	failures    map[string]*stubFailure
	failEmails  map[string]int
	omitIDs     map[string]bool
	hooks       map[string]func()
	nextID      int
}

// NewSenderStub starts a stub server that is closed when the test ends.
func NewSenderStub(t *testing.T) *SenderStub {
	t.Helper()

	s := &SenderStub{
		Token:      "test-token",
		calls:      make(map[string]int),
		failures:   make(map[string]*stubFailure),
		failEmails: make(map[string]int),
		omitIDs:    make(map[string]bool),
		hooks:      make(map[string]func()),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /subscribers", s.route("GET /subscribers", s.listSubscribers))
	mux.HandleFunc("GET /subscribers/{id}", s.route("GET /subscribers/{id}", s.getSubscriber))
	mux.HandleFunc("POST /subscribers", s.route("POST /subscribers", s.createSubscriber))
	mux.HandleFunc("PATCH /subscribers/{id}", s.route("PATCH /subscribers/{id}", s.updateSubscriber))
	mux.HandleFunc("DELETE /subscribers", s.route("DELETE /subscribers", s.deleteSubscribers))
	mux.HandleFunc("GET /groups", s.route("GET /groups", s.listGroups))
	mux.HandleFunc("GET /groups/{id}", s.route("GET /groups/{id}", s.getGroup))
	mux.HandleFunc("POST /groups", s.route("POST /groups", s.createGroup))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// URL returns the stub's base URL.
func (s *SenderStub) URL() string { return s.Server.URL }

// AddSubscriber seeds an existing remote subscriber and returns its ID.
func (s *SenderStub) AddSubscriber(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.insert(email)
	return sub.ID
}

// AddGroup seeds a group and returns its ID.
func (s *SenderStub) AddGroup(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertGroup(title).ID
}

// Subscriber returns a copy of the subscriber addressed by ID or email.
func (s *SenderStub) Subscriber(identifier string) (StubSubscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.find(identifier)
	if sub == nil {
		return StubSubscriber{}, false
	}
	return sub.clone(), true
}

// SetStatus overwrites a stored subscriber's marketing and transactional status.
func (s *SenderStub) SetStatus(identifier, status, transactional string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub := s.find(identifier); sub != nil {
		sub.Status = status
		sub.TransactionalEmailStatus = transactional
	}
}

// SubscriberCount returns the number of stored subscribers.
func (s *SenderStub) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Groups returns the stored group titles in creation order.
func (s *SenderStub) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.groups))
	for i, g := range s.groups {
		out[i] = g.Title
	}
	return out
}

// Calls returns how many requests hit route (e.g. "GET /groups").
func (s *SenderStub) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls returns the number of requests of any kind.
func (s *SenderStub) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// MutatingCalls returns the number of POST, PATCH and DELETE requests.
func (s *SenderStub) MutatingCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for route, c := range s.calls {
		if !strings.HasPrefix(route, http.MethodGet) {
			n += c
		}
	}
	return n
}

// ResetCalls zeroes the call counters.
func (s *SenderStub) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

// FailRoute makes the next times requests to route answer with status. times <= 0 fails forever.
// header is added to the failure response.
func (s *SenderStub) FailRoute(route string, status, times int, header http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = &stubFailure{status: status, times: times, header: header}
}

// FailEmail makes creates and updates for email answer with status.
func (s *SenderStub) FailEmail(email string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failEmails[strings.ToLower(email)] = status
}

// OmitID makes 2xx responses for route drop the data.id key.
func (s *SenderStub) OmitID(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitIDs[route] = true
}

// RemoveGroup deletes the group with id, as if it were removed in the Sender.net dashboard.
func (s *SenderStub) RemoveGroup(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = slices.DeleteFunc(s.groups, func(g stubGroup) bool { return g.ID == id })
}

// OnCall runs fn each time route is requested, before the response is written.
func (s *SenderStub) OnCall(route string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[route] = fn
}

func (s *SenderStub) route(name string, h func(http.ResponseWriter, *http.Request) (int, any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.calls[name]++
		if fn := s.hooks[name]; fn != nil {
			fn()
		}

		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthenticated."})
			return
		}

		if f, ok := s.failures[name]; ok {
			for k, vs := range f.header {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			if f.times > 0 {
				f.times--
				if f.times == 0 {
					delete(s.failures, name)
				}
			}
			writeJSON(w, f.status, map[string]any{"message": http.StatusText(f.status)})
			return
		}

		status, body := h(w, r)
		if s.omitIDs[name] && status < 300 {
			body = stripID(body)
		}
		writeJSON(w, status, body)
	}
}

func (s *SenderStub) listSubscribers(_ http.ResponseWriter, r *http.Request) (int, any) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 100
	}

	total := len(s.subscribers)
	lastPage := max(1, (total+perPage-1)/perPage)

	data := []map[string]any{}
	for i := (page - 1) * perPage; i < min(page*perPage, total); i++ {
		data = append(data, s.subscribers[i].json())
	}

	return http.StatusOK, map[string]any{
		"data": data,
		"meta": map[string]any{"current_page": page, "last_page": lastPage, "per_page": perPage, "total": total},
	}
}

func (s *SenderStub) getSubscriber(_ http.ResponseWriter, r *http.Request) (int, any) {
	sub := s.find(r.PathValue("id"))
	if sub == nil {
		return http.StatusNotFound, map[string]any{"message": "Subscriber not found"}
	}
	return http.StatusOK, map[string]any{"data": sub.json()}
}

type stubSubscriberBody struct {
	Email                    string            `json:"email"`
	Firstname                *string           `json:"firstname"`
	Lastname                 *string           `json:"lastname"`
	Status                   string            `json:"status"`
	SubscriberStatus         string            `json:"subscriber_status"`
	TransactionalEmailStatus string            `json:"transactional_email_status"`
	TriggerAutomation        *bool             `json:"trigger_automation"`
	Groups                   []string          `json:"groups"`
	Fields                   map[string]string `json:"fields"`
}

func (s *SenderStub) createSubscriber(_ http.ResponseWriter, r *http.Request) (int, any) {
	var body stubSubscriberBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		return http.StatusUnprocessableEntity, map[string]any{"message": "The email field is required."}
	}
	if status, ok := s.failEmails[strings.ToLower(body.Email)]; ok {
		return status, map[string]any{"message": http.StatusText(status)}
	}
	if s.find(body.Email) != nil {
		return http.StatusUnprocessableEntity, map[string]any{"message": "Subscriber already exists."}
	}

	sub := s.insert(body.Email)
	sub.apply(body)
	sub.Status = body.Status
	if body.TriggerAutomation != nil {
		sub.TriggerAutomation = *body.TriggerAutomation
	}
	return http.StatusOK, map[string]any{"success": true, "data": sub.json()}
}

func (s *SenderStub) updateSubscriber(_ http.ResponseWriter, r *http.Request) (int, any) {
	sub := s.find(r.PathValue("id"))
	if sub == nil {
		return http.StatusNotFound, map[string]any{"message": "Subscriber not found"}
	}
	if status, ok := s.failEmails[strings.ToLower(sub.Email)]; ok {
		return status, map[string]any{"message": http.StatusText(status)}
	}

	var body stubSubscriberBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return http.StatusUnprocessableEntity, map[string]any{"message": err.Error()}
	}
	sub.apply(body)
	if body.SubscriberStatus != "" {
		sub.Status = body.SubscriberStatus
	}
	if body.TransactionalEmailStatus != "" {
		sub.TransactionalEmailStatus = body.TransactionalEmailStatus
	}
	if body.TriggerAutomation != nil {
		sub.TriggerAutomation = *body.TriggerAutomation
	}
	return http.StatusOK, map[string]any{"success": true, "data": sub.json()}
}

func (s *SenderStub) deleteSubscribers(_ http.ResponseWriter, r *http.Request) (int, any) {
	var body struct {
		Subscribers []string `json:"subscribers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Subscribers) == 0 {
		return http.StatusUnprocessableEntity, map[string]any{"message": "The subscribers field is required."}
	}

	s.subscribers = slices.DeleteFunc(s.subscribers, func(sub *StubSubscriber) bool {
		return slices.ContainsFunc(body.Subscribers, func(e string) bool { return strings.EqualFold(e, sub.Email) })
	})
	return http.StatusOK, map[string]any{"success": true}
}

func (s *SenderStub) listGroups(_ http.ResponseWriter, _ *http.Request) (int, any) {
	return http.StatusOK, map[string]any{"data": slices.Clone(s.groups)}
}

func (s *SenderStub) getGroup(_ http.ResponseWriter, r *http.Request) (int, any) {
	for _, g := range s.groups {
		if g.ID == r.PathValue("id") {
			return http.StatusOK, map[string]any{"data": g}
		}
	}
	return http.StatusNotFound, map[string]any{"message": "Group not found"}
}

func (s *SenderStub) createGroup(_ http.ResponseWriter, r *http.Request) (int, any) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == "" {
		return http.StatusUnprocessableEntity, map[string]any{"message": "The title field is required."}
	}
	return http.StatusOK, map[string]any{"success": true, "data": s.insertGroup(body.Title)}
}

func (s *SenderStub) insert(email string) *StubSubscriber {
	s.nextID++
	sub := &StubSubscriber{
		ID:     fmt.Sprintf("sub_%d", s.nextID),
		Email:  email,
		Status: "ACTIVE",
		Fields: make(map[string]string),
	}
	s.subscribers = append(s.subscribers, sub)
	return sub
}

func (s *SenderStub) insertGroup(title string) stubGroup {
	s.nextID++
	g := stubGroup{ID: fmt.Sprintf("grp_%d", s.nextID), Title: title}
	s.groups = append(s.groups, g)
	return g
}

func (s *SenderStub) find(identifier string) *StubSubscriber {
	for _, sub := range s.subscribers {
		if sub.ID == identifier || strings.EqualFold(sub.Email, identifier) {
			return sub
		}
	}
	return nil
}

func (sub *StubSubscriber) apply(body stubSubscriberBody) {
	if body.Firstname != nil {
		sub.Firstname = *body.Firstname
	}
	if body.Lastname != nil {
		sub.Lastname = *body.Lastname
	}
	for k, v := range body.Fields {
		sub.Fields[k] = v
	}
	for _, g := range body.Groups {
		if !slices.Contains(sub.Groups, g) {
			sub.Groups = append(sub.Groups, g)
		}
	}
}

func (sub *StubSubscriber) json() map[string]any {
	groups := make([]map[string]any, 0, len(sub.Groups))
	for _, g := range sub.Groups {
		groups = append(groups, map[string]any{"id": g})
	}
	return map[string]any{
		"id":        sub.ID,
		"email":     sub.Email,
		"firstname": sub.Firstname,
		"lastname":  sub.Lastname,
		"status": map[string]any{
			"email":  sub.Status,
			"temail": sub.TransactionalEmailStatus,
		},
		"fields":            sub.Fields,
		"subscriber_groups": groups,
	}
}

func stripID(body any) any {
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	switch data := m["data"].(type) {
	case map[string]any:
		delete(data, "id")
	case stubGroup:
		m["data"] = map[string]any{"title": data.Title}
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
