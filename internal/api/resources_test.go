package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/session"
	"github.com/avellano/avellano-bot/internal/testutil"
)

const (
	horecaPhone    = "573001112233"
	wholesalePhone = "573004445566"
	homePhone      = "573007778899"
)

// seedCRM stores three consenting customers and one order for each of the
// business ones.
func (h *harness) seedCRM() map[string]*models.Order {
	h.t.Helper()
	customers := []models.Customer{
		{Phone: horecaPhone, Type: models.CustomerPremiumRestaurant, BusinessName: "La Fonda", City: "Ibagué",
			Responsable: models.ResponsableHoreca, RegisteredAt: testNow.Add(-time.Hour)},
		{Phone: wholesalePhone, Type: models.CustomerWholesaler, BusinessName: "Distribuidora Sur", City: "Neiva",
			Responsable: models.ResponsableWholesale, RegisteredAt: testNow.Add(-48 * time.Hour)},
		{Phone: homePhone, Type: models.CustomerHome, Name: "Ana", City: "Ibagué", RegisteredAt: testNow.Add(-2 * time.Hour)},
	}
	for i := range customers {
		customers[i].AcceptPolicy(customers[i].RegisteredAt)
		testutil.SeedCustomer(h.t, h.st, customers[i])
	}

	placed := map[string]*models.Order{}
	for _, c := range customers[:2] {
		c := c
		o, err := h.orders.Place(context.Background(), &c, []models.OrderLine{{Product: "Pollo entero", Quantity: 10, UnitPrice: 18000}})
		if err != nil {
			h.t.Fatalf("Place: %v", err)
		}
		placed[c.Phone] = o
	}
	for _, phone := range []string{horecaPhone, homePhone} {
		if err := h.st.AppendMessage(context.Background(), phone, models.LoggedMessage{Role: models.RoleCustomer, Text: "hola", Timestamp: testNow}); err != nil {
			h.t.Fatalf("AppendMessage: %v", err)
		}
	}
	h.sender.Reset()
	return placed
}

func TestCustomersScopedByRole(t *testing.T) {
	h := newHarness(t)
	h.seedCRM()
	_, adminTok := h.addUser("admin@avellano.co", models.RoleAdmin, "")
	_, horecaTok := h.addUser("horeca@avellano.co", models.RoleOperator, models.ResponsableHoreca)
	_, supportTok := h.addUser("soporte@avellano.co", models.RoleSupport, "")

	cases := []struct {
		name  string
		token string
		query string
		want  int
	}{
		{"admin sees all", adminTok, "", 3},
		{"admin filters type", adminTok, "?tipo=hogar", 1},
		{"admin filters city", adminTok, "?ciudad=ibagu%C3%A9", 2},
		{"admin limit", adminTok, "?limit=1", 1},
		{"operator sees own", horecaTok, "", 1},
		{"support sees none", supportTok, "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := h.do(http.MethodGet, "/api/clientes"+tc.query, tc.token, nil)
			testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, tc.name)
			env := testutil.DecodeEnvelope(t, rr, true)
			if env.Total == nil || *env.Total != tc.want {
				t.Errorf("total = %v, want %d", env.Total, tc.want)
			}
		})
	}

	rr := h.do(http.MethodGet, "/api/clientes?tipo=marciano", adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid type")
}

func TestGetAndDeleteCustomer(t *testing.T) {
	h := newHarness(t)
	h.seedCRM()
	_, adminTok := h.addUser("admin@avellano.co", models.RoleAdmin, "")
	_, horecaTok := h.addUser("horeca@avellano.co", models.RoleOperator, models.ResponsableHoreca)
	_, supportTok := h.addUser("soporte@avellano.co", models.RoleSupport, "")

	rr := h.do(http.MethodGet, "/api/clientes/"+horecaPhone, horecaTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "own customer")
	var c models.Customer
	testutil.MustUnmarshalJSON(t, testutil.DecodeEnvelope(t, rr, true).Data, &c)
	if c.BusinessName != "La Fonda" {
		t.Errorf("customer = %+v", c)
	}

	rr = h.do(http.MethodGet, "/api/clientes/"+wholesalePhone, horecaTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "other operator's customer")

	rr = h.do(http.MethodGet, "/api/clientes/"+horecaPhone, supportTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "support reads customer")

	rr = h.do(http.MethodGet, "/api/clientes/570000000000", adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "missing customer")

	rr = h.do(http.MethodDelete, "/api/clientes/"+homePhone, horecaTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "operator deletes")

	sessions := session.NewPersisted(h.st)
	if err := sessions.Merge(context.Background(), homePhone, session.Values{session.KeyConsent: "persisted"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	rr = h.do(http.MethodDelete, "/api/clientes/"+homePhone, adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "admin deletes")
	rr = h.do(http.MethodGet, "/api/clientes/"+homePhone, adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "deleted customer")
	if got := sessions.Get(context.Background(), homePhone); len(got) != 0 {
		t.Errorf("session after delete = %v, want empty", got)
	}
}

func TestOrdersListAndGet(t *testing.T) {
	h := newHarness(t)
	placed := h.seedCRM()
	_, adminTok := h.addUser("admin@avellano.co", models.RoleAdmin, "")
	_, horecaTok := h.addUser("horeca@avellano.co", models.RoleOperator, models.ResponsableHoreca)

	rr := h.do(http.MethodGet, "/api/pedidos", adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "admin orders")
	if env := testutil.DecodeEnvelope(t, rr, true); *env.Total != 2 {
		t.Errorf("admin total = %d, want 2", *env.Total)
	}

	rr = h.do(http.MethodGet, "/api/pedidos?estado=pendiente", horecaTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "operator orders")
	var list []models.Order
	testutil.MustUnmarshalJSON(t, testutil.DecodeEnvelope(t, rr, true).Data, &list)
	if len(list) != 1 || list[0].Phone != horecaPhone {
		t.Errorf("operator orders = %+v", list)
	}

	rr = h.do(http.MethodGet, "/api/pedidos?estado=perdido", adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid state filter")

	own := placed[horecaPhone]
	rr = h.do(http.MethodGet, "/api/pedidos/"+own.Code, horecaTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get by code")
	rr = h.do(http.MethodGet, "/api/pedidos/"+own.ID, horecaTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get by id")
	rr = h.do(http.MethodGet, "/api/pedidos/"+placed[wholesalePhone].Code, horecaTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "out of scope order")
	rr = h.do(http.MethodGet, "/api/pedidos/AV-20240601-9999", adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "missing order")
}

func TestSetOrderState(t *testing.T) {
	h := newHarness(t)
	placed := h.seedCRM()
	_, horecaTok := h.addUser("horeca@avellano.co", models.RoleOperator, models.ResponsableHoreca)
	_, supportTok := h.addUser("soporte@avellano.co", models.RoleSupport, "")
	own := placed[horecaPhone]
	url := "/api/pedidos/" + own.Code + "/estado"

	rr := h.do(http.MethodPatch, "/api/pedidos/"+placed[wholesalePhone].Code+"/estado", horecaTok, map[string]string{"estado": "en_proceso"})
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "out of scope transition")

	rr = h.do(http.MethodPatch, url, horecaTok, map[string]string{"estado": "volando"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "unknown state")

	rr = h.do(http.MethodPatch, url, horecaTok, map[string]string{"estado": "atendido"})
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "pendiente to atendido")

	rr = h.do(http.MethodPatch, url, horecaTok, map[string]string{"estado": "en_proceso"})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "take")
	var res struct {
		Order    models.Order `json:"pedido"`
		Notified bool         `json:"notified"`
	}
	testutil.MustUnmarshalJSON(t, testutil.DecodeEnvelope(t, rr, true).Data, &res)
	if res.Order.State != models.OrderInProgress || !res.Notified {
		t.Errorf("take result = %+v", res)
	}
	if len(h.sender.To(horecaPhone)) != 1 {
		t.Errorf("customer notifications = %d, want 1", len(h.sender.To(horecaPhone)))
	}

	rr = h.do(http.MethodPatch, url, horecaTok, map[string]string{"estado": "cancelado"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "cancel without note")

	rr = h.do(http.MethodPatch, url, supportTok, map[string]string{"estado": "cancelado", "nota": "Cliente desistió"})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "support cancels")

	rr = h.do(http.MethodPatch, url, horecaTok, map[string]string{"estado": "en_proceso"})
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "terminal order")

	stored, err := h.st.GetOrder(context.Background(), own.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if stored.State != models.OrderCanceled || stored.CancelNotes != "Cliente desistió" || len(stored.History) != 3 {
		t.Errorf("stored order = %+v", stored)
	}
}

func TestTakeReportsFailedNotification(t *testing.T) {
	h := newHarness(t)
	placed := h.seedCRM()
	_, adminTok := h.addUser("admin@avellano.co", models.RoleAdmin, "")
	h.sender.Err = testutil.ErrSendFailed

	rr := h.do(http.MethodPatch, "/api/pedidos/"+placed[horecaPhone].ID+"/estado", adminTok, map[string]string{"estado": "en_proceso"})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "take with failing sender")
	var res struct {
		Order       models.Order `json:"pedido"`
		Notified    bool         `json:"notified"`
		NotifyError string       `json:"notifyError"`
	}
	testutil.MustUnmarshalJSON(t, testutil.DecodeEnvelope(t, rr, true).Data, &res)
	if res.Notified || res.NotifyError == "" || res.Order.State != models.OrderInProgress {
		t.Errorf("result = %+v", res)
	}
}

func TestConversations(t *testing.T) {
	h := newHarness(t)
	h.seedCRM()
	_, adminTok := h.addUser("admin@avellano.co", models.RoleAdmin, "")
	_, horecaTok := h.addUser("horeca@avellano.co", models.RoleOperator, models.ResponsableHoreca)
	_, supportTok := h.addUser("soporte@avellano.co", models.RoleSupport, "")

	rr := h.do(http.MethodGet, "/api/conversaciones", adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "admin conversations")
	var list []models.Conversation
	testutil.MustUnmarshalJSON(t, testutil.DecodeEnvelope(t, rr, true).Data, &list)
	if len(list) != 2 {
		t.Fatalf("conversations = %d, want 2", len(list))
	}
	for _, c := range list {
		if c.Phone == horecaPhone && (c.BusinessName != "La Fonda" || c.CustomerType != models.CustomerPremiumRestaurant) {
			t.Errorf("summary not enriched: %+v", c)
		}
	}

	rr = h.do(http.MethodGet, "/api/conversaciones", horecaTok, nil)
	if env := testutil.DecodeEnvelope(t, rr, true); *env.Total != 1 {
		t.Errorf("operator total = %d, want 1", *env.Total)
	}
	rr = h.do(http.MethodGet, "/api/conversaciones", supportTok, nil)
	if env := testutil.DecodeEnvelope(t, rr, true); *env.Total != 0 {
		t.Errorf("support total = %d, want 0", *env.Total)
	}

	rr = h.do(http.MethodGet, "/api/conversaciones/"+horecaPhone, horecaTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "own conversation")
	var conv models.Conversation
	testutil.MustUnmarshalJSON(t, testutil.DecodeEnvelope(t, rr, true).Data, &conv)
	if len(conv.Messages) != 1 || conv.Messages[0].Text != "hola" {
		t.Errorf("conversation = %+v", conv)
	}
	rr = h.do(http.MethodGet, "/api/conversaciones/"+homePhone, horecaTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "other conversation")
	rr = h.do(http.MethodGet, "/api/conversaciones/570000000000", adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "missing conversation")
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.seedCRM()
	_, adminTok := h.addUser("admin@avellano.co", models.RoleAdmin, "")
	_, horecaTok := h.addUser("horeca@avellano.co", models.RoleOperator, models.ResponsableHoreca)

	var stats statsResponse
	rr := h.do(http.MethodGet, "/api/stats", adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "admin stats")
	testutil.MustUnmarshalJSON(t, testutil.DecodeEnvelope(t, rr, true).Data, &stats)
	want := customerStats{Total: 3, Home: 1, Business: 2, Today: 2}
	if stats.Customers != want {
		t.Errorf("customers = %+v, want %+v", stats.Customers, want)
	}
	if stats.Orders[models.OrderPending] != 2 || stats.Orders[models.OrderCanceled] != 0 {
		t.Errorf("orders = %+v", stats.Orders)
	}
	if stats.Conversations != 2 {
		t.Errorf("conversations = %d, want 2", stats.Conversations)
	}

	stats = statsResponse{}
	rr = h.do(http.MethodGet, "/api/stats", horecaTok, nil)
	testutil.MustUnmarshalJSON(t, testutil.DecodeEnvelope(t, rr, true).Data, &stats)
	if stats.Customers.Total != 1 || stats.Orders[models.OrderPending] != 1 || stats.Conversations != 1 {
		t.Errorf("operator stats = %+v", stats)
	}
}

func TestBroadcasts(t *testing.T) {
	h := newHarness(t)
	h.seedCRM()
	_, adminTok := h.addUser("admin@avellano.co", models.RoleAdmin, "")
	_, horecaTok := h.addUser("horeca@avellano.co", models.RoleOperator, models.ResponsableHoreca)

	body := map[string]interface{}{
		"nombre":  "Promo pollo",
		"mensaje": "Esta semana 10% de descuento",
		"filtros": map[string]interface{}{"tipo": "negocios"},
	}
	rr := h.do(http.MethodPost, "/api/eventos", horecaTok, body)
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "operator creates broadcast")

	rr = h.do(http.MethodPost, "/api/eventos", adminTok, body)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "immediate broadcast")
	var b models.Broadcast
	testutil.MustUnmarshalJSON(t, testutil.DecodeEnvelope(t, rr, true).Data, &b)
	if b.Status != models.BroadcastSent || b.Counts.Sent != 2 || b.CreatedBy != "admin@avellano.co" {
		t.Errorf("broadcast = %+v", b)
	}
	if !h.sender.AnyContains(horecaPhone, "descuento") || h.sender.AnyContains(homePhone, "descuento") {
		t.Errorf("unexpected recipients: %+v", h.sender.Sent())
	}

	later := testNow.Add(24 * time.Hour).Format(time.RFC3339)
	rr = h.do(http.MethodPost, "/api/eventos", adminTok, map[string]interface{}{
		"nombre": "Mañana", "mensaje": "Recuerda tu pedido", "filtros": map[string]interface{}{"tipo": "todos"},
		"programadoPara": later,
	})
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "scheduled broadcast")
	testutil.MustUnmarshalJSON(t, testutil.DecodeEnvelope(t, rr, true).Data, &b)
	if b.Status != models.BroadcastScheduled {
		t.Errorf("scheduled status = %s", b.Status)
	}

	rr = h.do(http.MethodPost, "/api/eventos", adminTok, map[string]interface{}{
		"nombre": "Sin filtro", "mensaje": "x", "filtros": map[string]interface{}{"tipo": "ciudad"},
	})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "city filter without cities")

	rr = h.do(http.MethodPost, "/api/eventos", adminTok, map[string]interface{}{"nombre": "Incompleto"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing fields")

	rr = h.do(http.MethodGet, "/api/eventos", adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list broadcasts")
	if env := testutil.DecodeEnvelope(t, rr, true); *env.Total != 2 {
		t.Errorf("broadcasts = %d, want 2", *env.Total)
	}

	rr = h.do(http.MethodGet, "/api/eventos/"+b.ID, adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get broadcast")
	rr = h.do(http.MethodGet, "/api/eventos/nope", adminTok, nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "missing broadcast")
}
