package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/medicalrecord"
	"github.com/hms/hms/internal/platform/notification"
)

// memRepo enforces the one-active-appointment-per-slot rule the way the
// partial unique index does.
type memRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
	// linked marks appointments that other tables reference.
	linked map[uuid.UUID]bool
}

func newMemRepo() *memRepo {
	return &memRepo{appts: make(map[uuid.UUID]*Appointment), linked: make(map[uuid.UUID]bool)}
}

func (m *memRepo) slotTaken(a *Appointment) bool {
	if !a.Status.HoldsSlot() {
		return false
	}
	for _, o := range m.appts {
		if o.ID != a.ID && o.DoctorID == a.DoctorID && o.Date == a.Date && o.Time == a.Time && o.Status.HoldsSlot() {
			return true
		}
	}
	return false
}

func (m *memRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if m.slotTaken(a) {
		return ErrSlotConflict
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[a.ID]; !ok {
		return ErrNotFound
	}
	if m.slotTaken(a) {
		return ErrSlotConflict
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[id]; !ok {
		return ErrNotFound
	}
	if m.linked[id] {
		return ErrHasRecords
	}
	delete(m.appts, id)
	return nil
}

func (m *memRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		switch {
		case f.PatientID != nil && a.PatientID != *f.PatientID,
			f.DoctorID != nil && a.DoctorID != *f.DoctorID,
			f.Status != "" && a.Status != f.Status,
			f.Date != "" && a.Date != f.Date,
			f.From != "" && a.Date < f.From,
			f.To != "" && a.Date > f.To:
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date+out[i].Time > out[j].Date+out[j].Time })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	if offset+limit < total {
		out = out[:offset+limit]
	}
	return out[offset:], total, nil
}

func (m *memRepo) HasConflict(_ context.Context, doctorID uuid.UUID, date, hhmm string, excludeID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.DoctorID == doctorID && a.Date == date && a.Time == hhmm && a.Status.HoldsSlot() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) TakenSlots(_ context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Date == date && a.Status.HoldsSlot() {
			out = append(out, a.Time)
		}
	}
	sort.Strings(out)
	return out, nil
}

type memDirectory struct {
	patients map[uuid.UUID]*identity.Patient
	doctors  map[uuid.UUID]*identity.Doctor
}

func newMemDirectory() *memDirectory {
	return &memDirectory{patients: make(map[uuid.UUID]*identity.Patient), doctors: make(map[uuid.UUID]*identity.Doctor)}
}

func (d *memDirectory) GetPatient(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return p, nil
}

func (d *memDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*identity.Doctor, error) {
	doc, ok := d.doctors[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return doc, nil
}

// memBiller keeps one bill per appointment.
type memBiller struct {
	mu    sync.Mutex
	bills map[uuid.UUID]*billing.Bill
	err   error
}

func (b *memBiller) EnsureForAppointment(_ context.Context, ch billing.Charge) (*billing.Bill, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, false, b.err
	}
	if existing, ok := b.bills[ch.AppointmentID]; ok {
		return existing, false, nil
	}
	bill := &billing.Bill{
		ID:            uuid.New(),
		AppointmentID: ch.AppointmentID,
		PatientID:     ch.PatientID,
		DoctorID:      ch.DoctorID,
		Amount:        ch.Amount,
		PaymentStatus: billing.StatusUnpaid,
	}
	b.bills[ch.AppointmentID] = bill
	return bill, true, nil
}

type memRecords struct {
	mu      sync.Mutex
	records map[uuid.UUID]*medicalrecord.MedicalRecord
}

func (r *memRecords) EnsureSkeleton(_ context.Context, sk medicalrecord.Skeleton) (*medicalrecord.MedicalRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[sk.AppointmentID]; ok {
		return existing, false, nil
	}
	rec := &medicalrecord.MedicalRecord{
		ID:            uuid.New(),
		AppointmentID: sk.AppointmentID,
		PatientID:     sk.PatientID,
		DoctorID:      sk.DoctorID,
		Diagnosis:     medicalrecord.SkeletonDiagnosis,
	}
	r.records[sk.AppointmentID] = rec
	return rec, true, nil
}

type memOutbox struct {
	mu      sync.Mutex
	intents []notification.Intent
	events  bool
	err     error
}

func (o *memOutbox) Enqueue(_ context.Context, intents ...notification.Intent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.intents = append(o.intents, intents...)
	return nil
}

func (o *memOutbox) Enabled(c notification.Channel) bool {
	return c != notification.ChannelEvent || o.events
}

func (o *memOutbox) byTemplate(template string) []notification.Intent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notification.Intent
	for _, in := range o.intents {
		if in.Template == template {
			out = append(out, in)
		}
	}
	return out
}

type countingObserver struct {
	mu          sync.Mutex
	transitions map[string]int
	rejected    map[string]int
	conflicts   int
	derived     map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{transitions: map[string]int{}, rejected: map[string]int{}, derived: map[string]int{}}
}

func (o *countingObserver) TransitionRecorded(action string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.rejected[action]++
		return
	}
	o.transitions[action]++
}

func (o *countingObserver) ConflictDetected() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conflicts++
}

func (o *countingObserver) DerivedRecordCreated(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.derived[kind]++
}

var errBoom = errors.New("boom")
