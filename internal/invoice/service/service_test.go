package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/freightpay/internal/actorcontext"
	"github.com/smallbiznis/freightpay/internal/authorization"
	"github.com/smallbiznis/freightpay/internal/clock"
	"github.com/smallbiznis/freightpay/internal/config"
	"github.com/smallbiznis/freightpay/internal/docgate"
	"github.com/smallbiznis/freightpay/internal/factoring"
	"github.com/smallbiznis/freightpay/internal/factoring/reference"
	"github.com/smallbiznis/freightpay/internal/identity"
	"github.com/smallbiznis/freightpay/internal/invoice/domain"
	"github.com/smallbiznis/freightpay/internal/invoice/repository"
	"github.com/smallbiznis/freightpay/internal/load"
	"github.com/smallbiznis/freightpay/internal/notification"
	"github.com/smallbiznis/freightpay/internal/observability/metrics"
	"github.com/smallbiznis/freightpay/internal/sequence"
	"github.com/smallbiznis/freightpay/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	carrierUID = "carrier-alpha"
	shipperUID = "shipper-beta"
	adminUID   = "admin-ops"
	otherUID   = "carrier-other"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *recordingNotifier) Enqueue(msg notification.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return true
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Kind)
	}
	return out
}

type flakyFactory struct {
	fail   *atomic.Bool
	during *atomic.Pointer[func()]
}

func (f flakyFactory) Provider() string { return "flaky" }

func (f flakyFactory) NewProvider(config.FactoringPolicy) (factoring.Provider, error) {
	return flakyProvider(f), nil
}

type flakyProvider struct {
	fail   *atomic.Bool
	during *atomic.Pointer[func()]
}

func (p flakyProvider) Name() string { return "flaky" }

func (p flakyProvider) Submit(ctx context.Context, sub factoring.Submission) (factoring.Result, error) {
	if hook := p.during.Load(); hook != nil {
		(*hook)()
	}
	if p.fail.Load() {
		return factoring.Result{}, errors.New("upstream timeout")
	}
	return factoring.Result{ProviderReference: "FLAKY-1", Accepted: true, AdvanceAmount: sub.AmountTotal / 2}, nil
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	clock    *clock.FakeClock
	notifier *recordingNotifier
	flaky    *atomic.Bool
	during   *atomic.Pointer[func()]
}

func setup(t *testing.T) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	models := append(domain.Models(), &sequence.Counter{}, &load.Load{}, &load.Document{}, &identity.User{})
	require.NoError(t, db.AutoMigrate(models...))

	require.NoError(t, db.Create([]identity.User{
		{UID: carrierUID, Role: "carrier", Email: "ops@alpha.test"},
		{UID: shipperUID, Role: "shipper", Email: "ap@beta.test"},
		{UID: adminUID, Role: "admin"},
		{UID: otherUID, Role: "carrier"},
		{UID: "carrier-as-payer", Role: "carrier"},
	}).Error)

	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	policy := config.NewStaticPolicyHolder(config.DefaultBillingPolicy())
	loads := load.NewLookup(load.Params{DB: db})
	m := metrics.New(prometheus.NewRegistry())
	flaky := &atomic.Bool{}
	during := &atomic.Pointer[func()]{}
	notifier := &recordingNotifier{}

	svc := newService(ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fc,
		Config:    config.Config{FactoringTimeout: time.Second},
		Policy:    policy,
		Repo:      repository.Provide(),
		Sequence:  sequence.NewService(sequence.Params{DB: db, Log: zap.NewNop(), Clock: fc, Metrics: m}),
		Gate:      docgate.NewGate(docgate.Params{Loads: loads, Policy: policy}),
		Loads:     loads,
		Users:     identity.NewLookup(identity.Params{DB: db}),
		Factoring: factoring.NewRegistry(policy, reference.NewFactory(), flakyFactory{fail: flaky, during: during}),
		Notifier:  notifier,
		Metrics:   m,
	})
	return &fixture{svc: svc, db: db, clock: fc, notifier: notifier, flaky: flaky, during: during}
}

func (f *fixture) seedLoad(t *testing.T, id, number, terms string, withPOD bool) {
	t.Helper()
	require.NoError(t, f.db.Create(&load.Load{
		ID:                 id,
		LoadNumber:         number,
		Status:             "DELIVERED",
		AssignedCarrierUID: carrierUID,
		PayerUID:           shipperUID,
		PaymentTerms:       terms,
		UpdatedAt:          f.clock.Now(),
	}).Error)
	if withPOD {
		require.NoError(t, f.db.Create(&load.Document{
			ID:        "doc-" + id,
			LoadID:    id,
			Kind:      "proof_of_delivery",
			URL:       "https://vault.test/" + id + "/pod.pdf",
			Filename:  "pod.pdf",
			CreatedAt: f.clock.Now(),
		}).Error)
	}
}

func as(uid string, role authorization.Role) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{UID: uid, Role: role})
}

func carrierCtx() context.Context { return as(carrierUID, authorization.RoleCarrier) }
func shipperCtx() context.Context { return as(shipperUID, authorization.RoleShipper) }

func (f *fixture) sentInvoice(t *testing.T, loadID string, amount int64, factoringEnabled bool) *domain.Invoice {
	t.Helper()
	f.seedLoad(t, loadID, "LD-"+loadID, "NET30", true)
	inv, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{
		LoadID:           loadID,
		AmountTotal:      amount,
		FactoringEnabled: factoringEnabled,
	})
	require.NoError(t, err)
	inv, err = f.svc.SendInvoice(carrierCtx(), inv.ID)
	require.NoError(t, err)
	return inv
}

func TestCreateInvoiceIssuesWithVaultPOD(t *testing.T) {
	f := setup(t)
	f.seedLoad(t, "load-a", "FP-ATL-LD-000123", "NET30", true)

	inv, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{
		LoadID:      "load-a",
		AmountTotal: 25000,
		Attachments: []domain.Attachment{{Kind: "POD", DocumentID: "forged", URL: "https://evil.test/pod.pdf"}},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusIssued, inv.Status)
	assert.NotNil(t, inv.IssuedAt)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, shipperUID, inv.PayerUID)
	assert.Equal(t, "shipper", inv.PayerRole)
	assert.True(t, strings.HasPrefix(inv.InvoiceNumber, "FP-FP-ATL-LD-000123-CARR-SHIP-"), inv.InvoiceNumber)

	require.Len(t, inv.Attachments, 1)
	assert.Equal(t, docgate.KindPOD, inv.Attachments[0].Kind)
	assert.Equal(t, domain.AttachmentSourceVault, inv.Attachments[0].Source)
	assert.Equal(t, "doc-load-a", inv.Attachments[0].DocumentID)

	stored, err := f.svc.GetInvoice(shipperCtx(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, stored.InvoiceNumber)
}

func TestCreateInvoiceWithoutPODFails(t *testing.T) {
	f := setup(t)
	f.seedLoad(t, "load-b", "LD-B", "NET30", false)

	_, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-b", AmountTotal: 1000})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "POD")

	draft, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-b", AmountTotal: 1000, Draft: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, draft.Status)

	_, err = f.svc.IssueInvoice(carrierCtx(), draft.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot issue invoice")
}

func TestCreateInvoiceCustomNumberMustIncludeLoadNumber(t *testing.T) {
	f := setup(t)
	f.seedLoad(t, "load-c", "FP-ATL-LD-000123", "NET30", true)

	_, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{
		LoadID:        "load-c",
		AmountTotal:   1000,
		InvoiceNumber: "CUSTOM-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "must include load_number")

	inv, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{
		LoadID:        "load-c",
		AmountTotal:   1000,
		InvoiceNumber: "inv fp-atl-ld-000123 a",
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-FP-ATL-LD-000123-A", inv.InvoiceNumber)
}

func TestCreateInvoiceRejections(t *testing.T) {
	f := setup(t)
	f.seedLoad(t, "load-d", "LD-D", "NET30", true)
	require.NoError(t, f.db.Create(&load.Load{ID: "in-transit", Status: "IN_TRANSIT", AssignedCarrierUID: carrierUID, PayerUID: shipperUID}).Error)

	_, err := f.svc.CreateInvoice(context.Background(), domain.CreateInvoiceRequest{LoadID: "load-d", AmountTotal: 1})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.svc.CreateInvoice(shipperCtx(), domain.CreateInvoiceRequest{LoadID: "load-d", AmountTotal: 1})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.CreateInvoice(as(otherUID, authorization.RoleCarrier), domain.CreateInvoiceRequest{LoadID: "load-d", AmountTotal: 1})
	assert.ErrorIs(t, err, domain.ErrNotAssignedCarrier)

	_, err = f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "missing", AmountTotal: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "in-transit", AmountTotal: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-d", AmountTotal: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-d", AmountTotal: 1, PayerUID: "carrier-as-payer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payer role")

	_, err = f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-d", AmountTotal: 1})
	require.NoError(t, err)
	_, err = f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-d", AmountTotal: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoice already exists for load")
}

func TestConcurrentCreateForSameLoadYieldsOneInvoice(t *testing.T) {
	f := setup(t)
	f.seedLoad(t, "load-race", "LD-RACE", "NET30", true)

	const callers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-race", AmountTotal: 500})
			if err == nil {
				successes.Add(1)
				return
			}
			assert.Contains(t, err.Error(), "already exists")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	var count int64
	require.NoError(t, f.db.Model(&domain.Invoice{}).Where("load_id = ?", "load-race").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConcurrentCustomNumberCollision(t *testing.T) {
	f := setup(t)
	f.seedLoad(t, "load-x", "LD-1", "NET30", true)
	f.seedLoad(t, "load-y", "LD-10", "NET30", true)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		failures  atomic.Int32
	)
	for _, loadID := range []string{"load-x", "load-y"} {
		wg.Add(1)
		go func(loadID string) {
			defer wg.Done()
			_, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{
				LoadID:        loadID,
				AmountTotal:   100,
				InvoiceNumber: "INV-LD-10-A",
			})
			if err == nil {
				successes.Add(1)
				return
			}
			if strings.Contains(err.Error(), "must be unique") {
				failures.Add(1)
			}
		}(loadID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(1), failures.Load())
}

func TestSendInvoiceComputesDueDateFromLoadTerms(t *testing.T) {
	f := setup(t)
	f.seedLoad(t, "load-d", "LD-D", "NET45", true)
	f.clock.Set(time.Unix(1000, 0))

	inv, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-d", AmountTotal: 9900, Draft: true})
	require.NoError(t, err)

	sent, err := f.svc.SendInvoice(carrierCtx(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)
	require.NotNil(t, sent.IssuedAt)
	require.NotNil(t, sent.DueDate)
	assert.Equal(t, int64(1000+45*domain.SecondsPerDay), sent.DueDate.Unix())

	assert.Equal(t, []string{"invoice_sent"}, f.notifier.kinds())
}

func TestSendInvoiceRejectsInvalidTerms(t *testing.T) {
	f := setup(t)
	f.seedLoad(t, "load-t", "LD-T", "NET200", true)
	inv, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-t", AmountTotal: 100})
	require.NoError(t, err)

	_, err = f.svc.SendInvoice(carrierCtx(), inv.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	stored, err := f.svc.GetInvoice(carrierCtx(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIssued, stored.Status)
}

func TestDisputeAndResolve(t *testing.T) {
	f := setup(t)
	inv := f.sentInvoice(t, "load-disp", 10000, false)

	_, err := f.svc.DisputeInvoice(carrierCtx(), inv.ID, domain.DisputeRequest{Reason: "wrong"})
	assert.ErrorIs(t, err, domain.ErrNotPayer)

	_, err = f.svc.DisputeInvoice(shipperCtx(), inv.ID, domain.DisputeRequest{Reason: "  "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	disputed, err := f.svc.DisputeInvoice(shipperCtx(), inv.ID, domain.DisputeRequest{Reason: "detention not agreed", Message: "see rate con"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisputed, disputed.Status)
	assert.NotNil(t, disputed.DisputedAt)
	record, ok := disputed.Metadata["dispute"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "detention not agreed", record["reason"])

	_, err = f.svc.SendInvoice(carrierCtx(), inv.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.ResolveDispute(shipperCtx(), inv.ID, domain.ResolveDisputeRequest{})
	assert.ErrorIs(t, err, domain.ErrNotIssuer)

	resolved, err := f.svc.ResolveDispute(carrierCtx(), inv.ID, domain.ResolveDisputeRequest{Resolution: "credited", Message: "removed detention"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, resolved.Status)
	assert.Nil(t, resolved.DisputedAt)

	_, err = f.svc.ResolveDispute(carrierCtx(), inv.ID, domain.ResolveDisputeRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	admin, err := f.svc.DisputeInvoice(as(adminUID, authorization.RoleAdmin), inv.ID, domain.DisputeRequest{Reason: "escalated"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisputed, admin.Status)

	assert.Equal(t, []string{"invoice_sent", "invoice_disputed", "invoice_dispute_resolved", "invoice_disputed"}, f.notifier.kinds())
}

func TestVoidReleasesLoad(t *testing.T) {
	f := setup(t)
	f.seedLoad(t, "load-v", "LD-V", "NET30", true)
	inv, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-v", AmountTotal: 100})
	require.NoError(t, err)

	_, err = f.svc.VoidInvoice(shipperCtx(), inv.ID, domain.VoidRequest{})
	assert.ErrorIs(t, err, domain.ErrNotIssuer)

	voided, err := f.svc.VoidInvoice(carrierCtx(), inv.ID, domain.VoidRequest{Reason: "wrong rate"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVoid, voided.Status)
	assert.NotNil(t, voided.VoidedAt)

	_, err = f.svc.SendInvoice(carrierCtx(), inv.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	replacement, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-v", AmountTotal: 120})
	require.NoError(t, err)
	assert.NotEqual(t, inv.InvoiceNumber, replacement.InvoiceNumber)
}

func TestRecordPaymentBoundaries(t *testing.T) {
	f := setup(t)
	inv := f.sentInvoice(t, "load-pay", 10000, false)

	partial, err := f.svc.RecordPayment(shipperCtx(), inv.ID, domain.RecordPaymentRequest{Amount: 9999, Method: "ACH", ExternalID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyPaid, partial.Invoice.Status)
	assert.Equal(t, int64(9999), partial.Invoice.AmountPaid)
	assert.Equal(t, "ach", partial.Payment.Method)

	replay, err := f.svc.RecordPayment(shipperCtx(), inv.ID, domain.RecordPaymentRequest{Amount: 9999, ExternalID: "tx-1"})
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, partial.Payment.ID, replay.Payment.ID)
	assert.Equal(t, int64(9999), replay.Invoice.AmountPaid)

	_, err = f.svc.RecordPayment(shipperCtx(), inv.ID, domain.RecordPaymentRequest{Amount: 2})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.RecordPayment(as(otherUID, authorization.RoleCarrier), inv.ID, domain.RecordPaymentRequest{Amount: 1})
	assert.ErrorIs(t, err, domain.ErrNotParty)

	paid, err := f.svc.RecordPayment(carrierCtx(), inv.ID, domain.RecordPaymentRequest{Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Invoice.Status)
	assert.NotNil(t, paid.Invoice.PaidAt)
	assert.Equal(t, int64(0), paid.Invoice.Outstanding())

	var payments int64
	require.NoError(t, f.db.Model(&domain.PaymentTransaction{}).Where("invoice_id = ?", inv.ID).Count(&payments).Error)
	assert.Equal(t, int64(2), payments)
	assert.Contains(t, f.notifier.kinds(), "invoice_paid")
}

func TestRecordPaymentExactTotalIsPaid(t *testing.T) {
	f := setup(t)
	inv := f.sentInvoice(t, "load-exact", 25000, false)

	res, err := f.svc.RecordPayment(as(adminUID, authorization.RoleAdmin), inv.ID, domain.RecordPaymentRequest{Amount: 25000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, res.Invoice.Status)
}

func TestRecordPaymentOnDraftIsIllegal(t *testing.T) {
	f := setup(t)
	f.seedLoad(t, "load-dr", "LD-DR", "NET30", true)
	inv, err := f.svc.CreateInvoice(carrierCtx(), domain.CreateInvoiceRequest{LoadID: "load-dr", AmountTotal: 100, Draft: true})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(shipperCtx(), inv.ID, domain.RecordPaymentRequest{Amount: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSubmitToFactoringWithReferenceProvider(t *testing.T) {
	f := setup(t)
	small := f.sentInvoice(t, "load-small", 500000, true)
	large := f.sentInvoice(t, "load-large", 2000000, true)

	accepted, err := f.svc.SubmitToFactoring(carrierCtx(), small.ID, reference.Name)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFactoringAccepted, accepted.Invoice.Status)
	assert.Equal(t, domain.SubmissionAccepted, accepted.Submission.Status)
	assert.Equal(t, int64(450000), accepted.Submission.AdvanceAmount)
	assert.True(t, strings.HasPrefix(accepted.Submission.ProviderReference, "REF-"))
	require.NotNil(t, accepted.Invoice.FactoringSubmissionID)
	assert.Equal(t, accepted.Submission.ID, *accepted.Invoice.FactoringSubmissionID)

	rejected, err := f.svc.SubmitToFactoring(carrierCtx(), large.ID, reference.Name)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFactoringRejected, rejected.Invoice.Status)
	assert.Equal(t, domain.SubmissionRejected, rejected.Submission.Status)
	assert.Contains(t, rejected.Submission.Message, "exceeds")
}

func TestSubmitToFactoringGuards(t *testing.T) {
	f := setup(t)
	direct := f.sentInvoice(t, "load-direct", 1000, false)

	_, err := f.svc.SubmitToFactoring(carrierCtx(), direct.ID, reference.Name)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.SubmitToFactoring(carrierCtx(), direct.ID, "nope")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.SubmitToFactoring(shipperCtx(), direct.ID, reference.Name)
	assert.ErrorIs(t, err, domain.ErrNotIssuer)
}

func TestSubmitToFactoringProviderFailureIsResumable(t *testing.T) {
	f := setup(t)
	inv := f.sentInvoice(t, "load-flaky", 4000, true)

	f.flaky.Store(true)
	_, err := f.svc.SubmitToFactoring(carrierCtx(), inv.ID, "flaky")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)

	pending, err := f.svc.GetInvoice(carrierCtx(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFactoringSubmitted, pending.Status)
	require.NotNil(t, pending.FactoringSubmissionID)
	firstSubmission := *pending.FactoringSubmissionID

	var stored domain.FactoringSubmission
	require.NoError(t, f.db.Where("id = ?", firstSubmission).Take(&stored).Error)
	assert.Equal(t, domain.SubmissionSubmitted, stored.Status)
	assert.Contains(t, stored.LastError, "upstream timeout")

	f.flaky.Store(false)
	res, err := f.svc.SubmitToFactoring(carrierCtx(), inv.ID, "flaky")
	require.NoError(t, err)
	assert.Equal(t, firstSubmission, res.Submission.ID)
	assert.Equal(t, domain.StatusFactoringAccepted, res.Invoice.Status)
	assert.Empty(t, res.Submission.LastError)

	var count int64
	require.NoError(t, f.db.Model(&domain.FactoringSubmission{}).Where("invoice_id = ?", inv.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubmitToFactoringKeepsVerdictWhenInvoiceTurnsOverdue(t *testing.T) {
	f := setup(t)
	inv := f.sentInvoice(t, "load-race", 4000, true)

	hook := func() {
		f.clock.Advance(31 * 24 * time.Hour)
		marked, err := f.svc.MarkOverdueInvoices(context.Background(), 10)
		require.NoError(t, err)
		require.Equal(t, 1, marked)
	}
	f.during.Store(&hook)

	_, err := f.svc.SubmitToFactoring(carrierCtx(), inv.ID, "flaky")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	current, err := f.svc.GetInvoice(carrierCtx(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, current.Status)
	require.NotNil(t, current.FactoringSubmissionID)

	var stored domain.FactoringSubmission
	require.NoError(t, f.db.Where("id = ?", *current.FactoringSubmissionID).Take(&stored).Error)
	assert.Equal(t, domain.SubmissionAccepted, stored.Status)
	assert.Equal(t, "FLAKY-1", stored.ProviderReference)
	assert.Equal(t, int64(2000), stored.AdvanceAmount)
	assert.NotNil(t, stored.DecidedAt)
	assert.Contains(t, stored.LastError, "OVERDUE")
}

func TestMarkOverdueInvoices(t *testing.T) {
	f := setup(t)
	first := f.sentInvoice(t, "load-o1", 100, false)
	second := f.sentInvoice(t, "load-o2", 100, false)
	disputed := f.sentInvoice(t, "load-o3", 100, false)
	_, err := f.svc.DisputeInvoice(shipperCtx(), disputed.ID, domain.DisputeRequest{Reason: "short"})
	require.NoError(t, err)

	marked, err := f.svc.MarkOverdueInvoices(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	f.clock.Advance(31 * 24 * time.Hour)

	marked, err = f.svc.MarkOverdueInvoices(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	marked, err = f.svc.MarkOverdueInvoices(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	marked, err = f.svc.MarkOverdueInvoices(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	for _, id := range []snowflake.ID{first.ID, second.ID} {
		inv, err := f.svc.GetInvoice(carrierCtx(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOverdue, inv.Status)
		assert.NotNil(t, inv.OverdueAt)
	}
	still, err := f.svc.GetInvoice(carrierCtx(), disputed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisputed, still.Status)
}

func TestListInvoicesIsScopedAndPaginated(t *testing.T) {
	f := setup(t)
	for _, id := range []string{"load-l1", "load-l2", "load-l3"} {
		f.sentInvoice(t, id, 100, false)
	}

	page, err := f.svc.ListInvoices(shipperCtx(), domain.ListInvoicesRequest{Pagination: paginationOf("", 2)})
	require.NoError(t, err)
	assert.Len(t, page.Invoices, 2)
	assert.True(t, page.HasMore)

	rest, err := f.svc.ListInvoices(shipperCtx(), domain.ListInvoicesRequest{Pagination: paginationOf(page.NextPageToken, 2)})
	require.NoError(t, err)
	assert.Len(t, rest.Invoices, 1)
	assert.False(t, rest.HasMore)
	assert.Less(t, rest.Invoices[0].ID.Int64(), page.Invoices[1].ID.Int64())

	none, err := f.svc.ListInvoices(as(otherUID, authorization.RoleCarrier), domain.ListInvoicesRequest{})
	require.NoError(t, err)
	assert.Empty(t, none.Invoices)

	all, err := f.svc.ListVisible(as(adminUID, authorization.RoleAdmin))
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.svc.ListInvoices(carrierCtx(), domain.ListInvoicesRequest{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.GetInvoice(as(otherUID, authorization.RoleCarrier), all[0].ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func paginationOf(token string, size int) pagination.Pagination {
	return pagination.Pagination{PageToken: token, PageSize: size}
}
