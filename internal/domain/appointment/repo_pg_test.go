package appointment

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/medicalrecord"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/notification"
	"github.com/hms/hms/migrations"
)

// These tests run against a real database and are skipped unless
// HMS_TEST_DATABASE_URL points at one.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("HMS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HMS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolOptions{URL: url, MaxConns: 25})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := db.NewMigrator(pool, migrations.Files).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

type pgEnv struct {
	svc     *Service
	repo    Repository
	bills   billing.Repository
	records medicalrecord.Repository
	patient *identity.Patient
	doctor  *identity.Doctor
}

func newPGEnv(t *testing.T) *pgEnv {
	pool := testPool(t)
	ctx := context.Background()
	dir := identity.NewService(identity.NewPatientRepo(pool), identity.NewDoctorRepo(pool), identity.NewReceptionistRepo(pool))

	p := &identity.Patient{Name: "Integration Patient", Active: true}
	if err := dir.CreatePatient(ctx, p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	d := &identity.Doctor{Name: "Integration Doctor", Specialization: "General Medicine", ConsultationFee: f64(500), Active: true}
	if err := dir.CreateDoctor(ctx, d); err != nil {
		t.Fatalf("create doctor: %v", err)
	}

	tx := db.NewTxRunner(pool)
	bills := billing.NewRepo(pool)
	records := medicalrecord.NewRepo(pool)
	repo := NewRepo(pool)
	outbox := notification.NewOutbox(notification.NewStorePG(pool), notification.NewTemplateEngine())
	svc := NewService(repo, dir, billing.NewService(bills, tx), medicalrecord.NewService(records, tx), outbox, tx, zerolog.Nop(),
		WithClock(func() time.Time { return testNow }, time.UTC))
	return &pgEnv{svc: svc, repo: repo, bills: bills, records: records, patient: p, doctor: d}
}

func TestPG_ConcurrentCreatesOneWins(t *testing.T) {
	env := newPGEnv(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- env.repo.Create(ctx, &Appointment{
				PatientID: env.patient.ID,
				DoctorID:  env.doctor.ID,
				Date:      "2030-03-04",
				Time:      "10:00",
				Status:    StatusBooked,
				CreatedBy: "patient",
			})
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrSlotConflict):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one appointment to persist, got %d", ok)
	}
	taken, err := env.repo.TakenSlots(ctx, env.doctor.ID, "2030-03-04")
	if err != nil {
		t.Fatalf("taken slots: %v", err)
	}
	if len(taken) != 1 {
		t.Errorf("expected one held slot, got %v", taken)
	}
}

func TestPG_CompleteCreatesDerivedRecordsOnce(t *testing.T) {
	env := newPGEnv(t)
	ctx := context.Background()
	doc := doctorOf(env.doctor)

	v, err := env.svc.Book(ctx, patientOf(env.patient), BookRequest{
		DoctorID: env.doctor.ID.String(),
		Date:     "2030-03-05",
		Time:     "11:00",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := env.svc.CheckIn(ctx, doc, v.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Complete(ctx, doc, v.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected one completion to succeed, got %d", ok)
	}

	bill, err := env.bills.GetByAppointment(ctx, v.ID)
	if err != nil {
		t.Fatalf("bill: %v", err)
	}
	if bill.Amount != 500 || bill.PaymentStatus != billing.StatusUnpaid {
		t.Errorf("expected 500 unpaid, got %v %s", bill.Amount, bill.PaymentStatus)
	}
	recs, total, err := env.records.List(ctx, medicalrecord.Filter{PatientID: &env.patient.ID}, 10, 0)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if total != 1 || !recs[0].IsSkeleton() {
		t.Errorf("expected one skeleton record, got %d", total)
	}
}
