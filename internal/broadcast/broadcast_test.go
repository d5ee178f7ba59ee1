package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/scheduler"
	"github.com/avellano/avellano-bot/internal/store"
	"github.com/avellano/avellano-bot/internal/testutil"
)

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	consenting := func(phone string, typ models.CustomerType, city string) models.Customer {
		c := models.Customer{Phone: phone, Type: typ, City: city, Status: models.CustomerActive}
		c.AcceptPolicy(testNow.Add(-time.Hour))
		return c
	}
	testutil.SeedCustomer(t, st, consenting("573000000001", models.CustomerHome, "Ibagué"))
	testutil.SeedCustomer(t, st, consenting("573000000002", models.CustomerStore, "Bogotá"))
	testutil.SeedCustomer(t, st, consenting("573000000003", models.CustomerWholesaler, "Ibagué"))

	revoked := consenting("573000000004", models.CustomerHome, "Ibagué")
	revoked.RevokePolicy(testNow)
	testutil.SeedCustomer(t, st, revoked)
	// Never accepted.
	testutil.SeedCustomer(t, st, models.Customer{Phone: "573000000005", Type: models.CustomerHome, City: "Ibagué", Status: models.CustomerActive})
}

func newService(t *testing.T, opts ...Option) (*Service, *store.SQLiteStore, *testutil.RecordingSender) {
	t.Helper()
	st := testutil.NewSQLiteStore(t)
	seed(t, st)
	sender := &testutil.RecordingSender{}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewService(st, st, sender, opts...), st, sender
}

func TestRecipients_OnlyConsentingCustomers(t *testing.T) {
	s, _, _ := newService(t)
	cases := []struct {
		name     string
		audience models.Audience
		want     int
	}{
		{"todos", models.Audience{Kind: models.AudienceAll}, 3},
		{"hogar", models.Audience{Kind: models.AudienceHome}, 1},
		{"negocios", models.Audience{Kind: models.AudienceBusiness}, 2},
		{"ciudad", models.Audience{Kind: models.AudienceCity, Cities: []string{"ibagué"}}, 2},
		{"tipo", models.Audience{Kind: models.AudienceType, Types: []models.CustomerType{models.CustomerStore}}, 1},
		{"personalizado", models.Audience{Kind: models.AudienceCustom, Phones: []string{"573000000002", "573000000004", "573000000005"}}, 1},
	}
	for _, tc := range cases {
		got, err := s.Recipients(context.Background(), tc.audience)
		if err != nil {
			t.Fatalf("%s: Recipients failed: %v", tc.name, err)
		}
		if len(got) != tc.want {
			t.Errorf("%s: expected %d recipients, got %d", tc.name, tc.want, len(got))
		}
		for _, c := range got {
			if !c.HasConsent() || c.Status != models.CustomerActive {
				t.Errorf("%s: non-consenting recipient %s", tc.name, c.Phone)
			}
		}
	}
}

func TestCreate_ImmediateSend(t *testing.T) {
	s, st, sender := newService(t)
	sender.FailFor = map[string]error{"573000000003": testutil.ErrSendFailed}

	b, err := s.Create(context.Background(), Request{
		Name:     "Promo junio",
		Message:  "🐔 Pollo entero a $16.900 esta semana",
		Audience: models.Audience{Kind: models.AudienceAll},
	}, "admin-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.Status != models.BroadcastSent || b.Counts.Sent != 2 || b.Counts.Failed != 1 {
		t.Errorf("unexpected broadcast %+v", b)
	}
	if len(sender.To("573000000004")) != 0 || len(sender.To("573000000005")) != 0 {
		t.Error("non-consenting customers must never be messaged")
	}
	stored, err := st.GetBroadcast(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetBroadcast failed: %v", err)
	}
	if stored.Counts != b.Counts || stored.SentAt == nil || stored.CreatedBy != "admin-1" {
		t.Errorf("unexpected stored broadcast %+v", stored)
	}
}

func TestCreate_AllSendsFail(t *testing.T) {
	s, _, sender := newService(t)
	sender.Err = testutil.ErrSendFailed
	b, err := s.Create(context.Background(), Request{Name: "x", Message: "y", Audience: models.Audience{Kind: models.AudienceHome}}, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.Status != models.BroadcastFailed {
		t.Errorf("expected failed status, got %s", b.Status)
	}
}

func TestCreate_Validation(t *testing.T) {
	s, _, _ := newService(t)
	later := testNow.Add(time.Hour)
	cases := map[string]Request{
		"missing name":      {Message: "m", Audience: models.Audience{Kind: models.AudienceAll}},
		"unknown audience":  {Name: "n", Message: "m", Audience: models.Audience{Kind: "vip"}},
		"city without list": {Name: "n", Message: "m", Audience: models.Audience{Kind: models.AudienceCity}},
		"bad type":          {Name: "n", Message: "m", Audience: models.Audience{Kind: models.AudienceType, Types: []models.CustomerType{"spa"}}},
		"custom no phones":  {Name: "n", Message: "m", Audience: models.Audience{Kind: models.AudienceCustom}},
		"both schedules":    {Name: "n", Message: "m", Audience: models.Audience{Kind: models.AudienceAll}, Cron: "0 9 * * 1", ScheduledFor: &later},
		"bad cron":          {Name: "n", Message: "m", Audience: models.Audience{Kind: models.AudienceAll}, Cron: "cada lunes"},
	}
	for name, req := range cases {
		if _, err := s.Create(context.Background(), req, ""); !errors.Is(err, ErrInvalidBroadcast) {
			t.Errorf("%s: expected ErrInvalidBroadcast, got %v", name, err)
		}
	}
}

func TestCreate_ProgrammedRunsThroughJob(t *testing.T) {
	st := testutil.NewSQLiteStore(t)
	seed(t, st)
	sender := &testutil.RecordingSender{}
	s := NewService(st, st, sender, WithClock(func() time.Time { return testNow }), WithJobs(st))

	at := testNow.Add(2 * time.Hour)
	b, err := s.Create(context.Background(), Request{
		Name: "Domingo", Message: "Abrimos el domingo", Audience: models.Audience{Kind: models.AudienceAll}, ScheduledFor: &at,
	}, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.Status != models.BroadcastScheduled || len(sender.Sent()) != 0 {
		t.Fatalf("expected programmed broadcast with nothing sent, got %+v", b)
	}

	jobs, err := st.ClaimDueJobs(at.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Kind != JobKind {
		t.Fatalf("expected one broadcast job, got %+v", jobs)
	}
	if err := s.HandleJob(context.Background(), jobs[0].PayloadJSON); err != nil {
		t.Fatalf("HandleJob failed: %v", err)
	}
	if len(sender.Sent()) != 3 {
		t.Errorf("expected 3 sends, got %d", len(sender.Sent()))
	}

	// A redelivered job does not send twice.
	if err := s.HandleJob(context.Background(), jobs[0].PayloadJSON); err != nil {
		t.Fatalf("HandleJob failed: %v", err)
	}
	if len(sender.Sent()) != 3 {
		t.Errorf("expected no resend, got %d", len(sender.Sent()))
	}
}

func TestCreate_SchedulingUnavailable(t *testing.T) {
	s, _, _ := newService(t)
	at := testNow.Add(time.Hour)
	if _, err := s.Create(context.Background(), Request{Name: "n", Message: "m", Audience: models.Audience{Kind: models.AudienceAll}, ScheduledFor: &at}, ""); !errors.Is(err, ErrSchedulingUnavailable) {
		t.Errorf("expected ErrSchedulingUnavailable, got %v", err)
	}
	if _, err := s.Create(context.Background(), Request{Name: "n", Message: "m", Audience: models.Audience{Kind: models.AudienceAll}, Cron: "0 9 * * 1"}, ""); !errors.Is(err, ErrSchedulingUnavailable) {
		t.Errorf("expected ErrSchedulingUnavailable, got %v", err)
	}
}

func TestCreate_RecurringRegistersAndRestores(t *testing.T) {
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	s, st, sender := newService(t, WithScheduler(sched))

	b, err := s.Create(context.Background(), Request{
		Name: "Lunes", Message: "Feliz lunes", Audience: models.Audience{Kind: models.AudienceHome}, Cron: "0 9 * * 1",
	}, "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.Status != models.BroadcastRecurring || sched.Len() != 1 || len(sender.Sent()) != 0 {
		t.Fatalf("expected registered recurring broadcast, got %+v (entries %d)", b, sched.Len())
	}

	// Deliveries accumulate and keep the recurring status.
	for i := 0; i < 2; i++ {
		cur, _ := st.GetBroadcast(context.Background(), b.ID)
		if err := s.Deliver(context.Background(), cur); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
	}
	cur, _ := st.GetBroadcast(context.Background(), b.ID)
	if cur.Status != models.BroadcastRecurring || cur.Counts.Sent != 2 {
		t.Errorf("unexpected recurring state %+v", cur)
	}

	// A fresh service after restart re-registers it once.
	sched2 := scheduler.NewScheduler()
	defer sched2.Stop()
	s2 := NewService(st, st, sender, WithScheduler(sched2))
	if err := s2.RestoreRecurring(context.Background()); err != nil {
		t.Fatalf("RestoreRecurring failed: %v", err)
	}
	s2.RestoreRecurring(context.Background())
	if sched2.Len() != 1 {
		t.Errorf("expected one restored entry, got %d", sched2.Len())
	}
}
