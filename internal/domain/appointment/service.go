package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/identity"
	"github.com/hms/hms/internal/domain/medicalrecord"
	"github.com/hms/hms/internal/domain/prescription"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/notification"
)

// DefaultConsultationFee is billed when a doctor has no fee of their own.
const DefaultConsultationFee = 500.0

var tracer = otel.Tracer("github.com/hms/hms/internal/domain/appointment")

// Directory looks up the people an appointment refers to.
type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
}

// Biller raises the bill of a completed appointment.
type Biller interface {
	EnsureForAppointment(ctx context.Context, ch billing.Charge) (*billing.Bill, bool, error)
}

// RecordKeeper opens the medical record of a completed appointment.
type RecordKeeper interface {
	EnsureSkeleton(ctx context.Context, sk medicalrecord.Skeleton) (*medicalrecord.MedicalRecord, bool, error)
}

// Notifier accepts notification intents. *notification.Outbox satisfies it.
type Notifier interface {
	Enqueue(ctx context.Context, intents ...notification.Intent) error
	Enabled(c notification.Channel) bool
}

// Observer receives lifecycle measurements.
type Observer interface {
	TransitionRecorded(action string, err error)
	ConflictDetected()
	DerivedRecordCreated(kind string)
}

type nopObserver struct{}

func (nopObserver) TransitionRecorded(string, error) {}
func (nopObserver) ConflictDetected()                {}
func (nopObserver) DerivedRecordCreated(string)      {}

type Service struct {
	repo       Repository
	directory  Directory
	bills      Biller
	records    RecordKeeper
	outbox     Notifier
	tx         db.Transactor
	obs        Observer
	logger     zerolog.Logger
	defaultFee float64
	now        func() time.Time
	loc        *time.Location
}

type Option func(*Service)

// WithDefaultFee sets the fee billed for doctors without one.
func WithDefaultFee(fee float64) Option {
	return func(s *Service) { s.defaultFee = fee }
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithClock sets the clock and the zone appointment dates are read in.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(s *Service) {
		s.now = now
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(repo Repository, directory Directory, bills Biller, records RecordKeeper, outbox Notifier,
	tx db.Transactor, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		directory:  directory,
		bills:      bills,
		records:    records,
		outbox:     outbox,
		tx:         tx,
		obs:        nopObserver{},
		logger:     logger.With().Str("component", "appointment").Logger(),
		defaultFee: DefaultConsultationFee,
		now:        time.Now,
		loc:        time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) finish(span trace.Span, action string, err error) {
	s.obs.TransitionRecorded(action, err)
	if errors.Is(err, ErrSlotConflict) {
		s.obs.ConflictDetected()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) parties(ctx context.Context, patientID, doctorID uuid.UUID) (*identity.Patient, *identity.Doctor, error) {
	p, err := s.directory.GetPatient(ctx, patientID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	d, err := s.doctor(ctx, doctorID)
	if err != nil {
		return nil, nil, err
	}
	return p, d, nil
}

func (s *Service) doctor(ctx context.Context, id uuid.UUID) (*identity.Doctor, error) {
	d, err := s.directory.GetDoctor(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, ErrDoctorNotFound
	}
	return d, err
}

// checkSchedule validates a slot against the doctor's working pattern and
// the clock. It does not look at other appointments.
func (s *Service) checkSchedule(d *identity.Doctor, date, hhmm string) error {
	day, err := validDate(date)
	if err != nil {
		return err
	}
	if err := validSlotTime(hhmm); err != nil {
		return err
	}
	if !d.Active {
		return fmt.Errorf("%w: Dr. %s is not accepting appointments", ErrDoctorUnavailable, d.Name)
	}
	if !d.WorksOn(day) {
		return fmt.Errorf("%w: Dr. %s does not work on %s", ErrDoctorUnavailable, d.Name, day.Weekday())
	}
	ok, err := d.InHours(hhmm)
	if err != nil {
		return fmt.Errorf("%w: Dr. %s's schedule is unusable: %v", ErrDoctorUnavailable, d.Name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is outside Dr. %s's working hours", ErrDoctorUnavailable, hhmm, d.Name)
	}
	start, err := slotStart(date, hhmm, s.loc)
	if err != nil {
		return err
	}
	if !start.After(s.now()) {
		return ErrPastSlot
	}
	return nil
}

func (s *Service) ensureFree(ctx context.Context, doctorID uuid.UUID, date, hhmm string, exclude *uuid.UUID) error {
	taken, err := s.repo.HasConflict(ctx, doctorID, date, hhmm, exclude)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if taken {
		return ErrSlotConflict
	}
	return nil
}

func checkOwner(actor auth.Principal, a *Appointment) error {
	var owner uuid.UUID
	switch actor.Role {
	case auth.RolePatient:
		owner = a.PatientID
	case auth.RoleDoctor:
		owner = a.DoctorID
	default:
		return nil
	}
	self, err := actor.ProfileID()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	if self != owner {
		if actor.Role == auth.RolePatient {
			return fmt.Errorf("%w: appointment belongs to another patient", ErrForbidden)
		}
		return fmt.Errorf("%w: appointment is assigned to another doctor", ErrForbidden)
	}
	return nil
}

// Book creates a booked appointment after the conflict check. Patients book
// for themselves.
func (s *Service) Book(ctx context.Context, actor auth.Principal, req BookRequest) (v *View, err error) {
	ctx, span := tracer.Start(ctx, "appointment.book")
	defer func() { s.finish(span, string(ActionBook), err) }()

	if err := Authorize(ActionBook, actor.Role, ""); err != nil {
		return nil, err
	}
	patientID, err := s.bookingPatient(actor, req.PatientID)
	if err != nil {
		return nil, err
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: doctor_id must be a UUID", ErrValidation)
	}
	if req.Status != "" {
		st, err := ParseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		if st != StatusBooked {
			return nil, fmt.Errorf("%w: new appointments start as booked", ErrValidation)
		}
	}
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()), attribute.String("appointment.date", req.Date))

	p, d, err := s.parties(ctx, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: patient record is inactive", ErrValidation)
	}
	if err := s.checkSchedule(d, req.Date, req.Time); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      req.Date,
		Time:      req.Time,
		Reason:    strings.TrimSpace(req.Reason),
		Status:    StatusBooked,
		CreatedBy: string(actor.Role),
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.ensureFree(ctx, doctorID, a.Date, a.Time, nil); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		return s.notify(ctx, notification.TemplateAppointmentBooked, a, p, d, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", doctorID.String()).
		Str("slot", a.Date+" "+a.Time).
		Str("created_by", a.CreatedBy).
		Msg("appointment booked")
	return newView(a, p, d), nil
}

func (s *Service) bookingPatient(actor auth.Principal, requested string) (uuid.UUID, error) {
	if actor.Role == auth.RolePatient {
		self, err := actor.ProfileID()
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %v", ErrForbidden, err)
		}
		if requested != "" && requested != self.String() {
			return uuid.Nil, fmt.Errorf("%w: patients can only book for themselves", ErrForbidden)
		}
		return self, nil
	}
	if requested == "" {
		return uuid.Nil, fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	id, err := uuid.Parse(requested)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: patient_id must be a UUID", ErrValidation)
	}
	return id, nil
}

// mutation changes a locked appointment. It returns extra template data.
type mutation func(ctx context.Context, a *Appointment, p *identity.Patient, d *identity.Doctor, now time.Time) (map[string]string, error)

var actionTemplates = map[Action]string{
	ActionCheckIn:    notification.TemplateAppointmentCheckedIn,
	ActionComplete:   notification.TemplateAppointmentCompleted,
	ActionCancel:     notification.TemplateAppointmentCancelled,
	ActionReschedule: notification.TemplateAppointmentRescheduled,
}

// transition runs one lifecycle action in a transaction that holds the
// appointment's row lock until the notifications are enqueued.
func (s *Service) transition(ctx context.Context, actor auth.Principal, id uuid.UUID, action Action, mutate mutation) (v *View, err error) {
	ctx, span := tracer.Start(ctx, "appointment."+string(action),
		trace.WithAttributes(attribute.String("appointment.id", id.String())))
	defer func() { s.finish(span, string(action), err) }()

	var (
		a    *Appointment
		p    *identity.Patient
		d    *identity.Doctor
		from Status
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if err := checkOwner(actor, a); err != nil {
			return err
		}
		if err := Authorize(action, actor.Role, a.Status); err != nil {
			return err
		}
		if p, d, err = s.parties(ctx, a.PatientID, a.DoctorID); err != nil {
			return err
		}
		from = a.Status
		extra, err := mutate(ctx, a, p, d, s.now().UTC())
		if err != nil {
			return err
		}
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		return s.notify(ctx, actionTemplates[action], a, p, d, extra)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("action", string(action)).
		Str("from", string(from)).
		Str("to", string(a.Status)).
		Str("actor_role", string(actor.Role)).
		Msg("appointment transitioned")
	return newView(a, p, d), nil
}

func (s *Service) CheckIn(ctx context.Context, actor auth.Principal, id uuid.UUID) (*View, error) {
	return s.transition(ctx, actor, id, ActionCheckIn,
		func(_ context.Context, a *Appointment, _ *identity.Patient, _ *identity.Doctor, now time.Time) (map[string]string, error) {
			a.Status = StatusCheckedIn
			a.CheckedInAt = &now
			return nil, nil
		})
}

// Complete closes a checked-in appointment and, in the same transaction,
// raises its bill and opens its medical record.
func (s *Service) Complete(ctx context.Context, actor auth.Principal, id uuid.UUID) (*View, error) {
	return s.transition(ctx, actor, id, ActionComplete,
		func(ctx context.Context, a *Appointment, p *identity.Patient, d *identity.Doctor, now time.Time) (map[string]string, error) {
			a.Status = StatusCompleted
			a.CompletedAt = &now

			bill, created, err := s.bills.EnsureForAppointment(ctx, billing.Charge{
				AppointmentID: a.ID,
				PatientID:     a.PatientID,
				DoctorID:      a.DoctorID,
				Amount:        d.Fee(s.defaultFee),
			})
			if err != nil {
				return nil, fmt.Errorf("create bill: %w", err)
			}
			if created {
				s.obs.DerivedRecordCreated("bill")
			}
			_, created, err = s.records.EnsureSkeleton(ctx, medicalrecord.Skeleton{
				AppointmentID: a.ID,
				PatientID:     a.PatientID,
				DoctorID:      a.DoctorID,
			})
			if err != nil {
				return nil, fmt.Errorf("create medical record: %w", err)
			}
			if created {
				s.obs.DerivedRecordCreated("medical_record")
			}

			amount := fmt.Sprintf("%.2f", bill.Amount)
			pid := p.ID
			err = s.outbox.Enqueue(ctx, notification.Intent{
				Channel:       notification.ChannelInApp,
				RecipientID:   &pid,
				RecipientRole: string(auth.RolePatient),
				Template:      notification.TemplateBillGenerated,
				Payload: map[string]string{
					"appointment_id": a.ID.String(),
					"bill_id":        bill.ID.String(),
					"recipient_name": p.Name,
					"amount":         amount,
					"date":           a.Date,
				},
			})
			if err != nil {
				return nil, err
			}
			return map[string]string{"amount": amount, "bill_id": bill.ID.String()}, nil
		})
}

func (s *Service) Cancel(ctx context.Context, actor auth.Principal, id uuid.UUID, reason string) (*View, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, actor, id, ActionCancel,
		func(_ context.Context, a *Appointment, _ *identity.Patient, _ *identity.Doctor, now time.Time) (map[string]string, error) {
			a.Status = StatusCancelled
			a.CancelledAt = &now
			a.CancellationReason = nil
			shown := "not given"
			if reason != "" {
				a.CancellationReason = &reason
				shown = reason
			}
			return map[string]string{"reason": shown, "cancelled_by": string(actor.Role)}, nil
		})
}

// Reschedule moves an appointment to a new slot with the same doctor and
// resets it to booked. A completed appointment keeps its bill and record.
func (s *Service) Reschedule(ctx context.Context, actor auth.Principal, id uuid.UUID, req RescheduleRequest) (*View, error) {
	return s.transition(ctx, actor, id, ActionReschedule,
		func(ctx context.Context, a *Appointment, _ *identity.Patient, d *identity.Doctor, now time.Time) (map[string]string, error) {
			if err := s.checkSchedule(d, req.Date, req.Time); err != nil {
				return nil, err
			}
			if err := s.ensureFree(ctx, a.DoctorID, req.Date, req.Time, &a.ID); err != nil {
				return nil, err
			}
			previous := a.Date + " " + a.Time
			a.Date, a.Time = req.Date, req.Time
			if r := strings.TrimSpace(req.Reason); r != "" {
				a.Reason = r
			}
			a.Status = StatusBooked
			a.RescheduledAt = &now
			a.CheckedInAt = nil
			a.CompletedAt = nil
			a.CancelledAt = nil
			a.CancellationReason = nil
			return map[string]string{"previous_slot": previous}, nil
		})
}

// ChangeStatus moves an appointment to the named status through the
// matching lifecycle action.
func (s *Service) ChangeStatus(ctx context.Context, actor auth.Principal, id uuid.UUID, req StatusRequest) (*View, error) {
	st, err := ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	switch st {
	case StatusCheckedIn:
		return s.CheckIn(ctx, actor, id)
	case StatusCompleted:
		return s.Complete(ctx, actor, id)
	case StatusCancelled:
		return s.Cancel(ctx, actor, id, req.Reason)
	}
	return nil, fmt.Errorf("%w: use reschedule to book an appointment again", ErrValidation)
}

// Update edits an appointment's details. Only booked and checked-in
// appointments can move to another slot or doctor. A doctor who loses the
// appointment is told it was cancelled on their side.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id uuid.UUID, req UpdateRequest) (v *View, err error) {
	ctx, span := tracer.Start(ctx, "appointment.update",
		trace.WithAttributes(attribute.String("appointment.id", id.String())))
	defer func() { s.finish(span, "update", err) }()

	var (
		a *Appointment
		p *identity.Patient
		d *identity.Doctor
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if err := checkOwner(actor, a); err != nil {
			return err
		}

		doctorID, date, hhmm := a.DoctorID, a.Date, a.Time
		if req.DoctorID != nil {
			if doctorID, err = uuid.Parse(*req.DoctorID); err != nil {
				return fmt.Errorf("%w: doctor_id must be a UUID", ErrValidation)
			}
		}
		if req.Date != nil {
			date = *req.Date
		}
		if req.Time != nil {
			hhmm = *req.Time
		}
		if p, d, err = s.parties(ctx, a.PatientID, doctorID); err != nil {
			return err
		}

		before := *a
		moved := doctorID != a.DoctorID || date != a.Date || hhmm != a.Time
		if moved {
			if a.Status != StatusBooked && a.Status != StatusCheckedIn {
				return fmt.Errorf("%w: a %s appointment cannot be moved", ErrInvalidTransition, a.Status)
			}
			if err := s.checkSchedule(d, date, hhmm); err != nil {
				return err
			}
			if err := s.ensureFree(ctx, doctorID, date, hhmm, &a.ID); err != nil {
				return err
			}
			a.DoctorID, a.Date, a.Time = doctorID, date, hhmm
		}
		if req.Reason != nil {
			a.Reason = strings.TrimSpace(*req.Reason)
		}
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		if before.DoctorID != a.DoctorID {
			prev, err := s.doctor(ctx, before.DoctorID)
			if err != nil {
				return err
			}
			if err := s.notifyReleased(ctx, &before, p, prev, d); err != nil {
				return err
			}
		}
		return s.notify(ctx, notification.TemplateAppointmentUpdated, a, p, d, nil)
	})
	if err != nil {
		return nil, err
	}
	return newView(a, p, d), nil
}

// Delete removes an appointment that has no bill, record or prescription.
// Parties of a booked or checked-in appointment are told it was cancelled.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "appointment.delete",
		trace.WithAttributes(attribute.String("appointment.id", id.String())))
	defer func() { s.finish(span, "delete", err) }()

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		if a.Status != StatusBooked && a.Status != StatusCheckedIn {
			return nil
		}
		p, d, err := s.parties(ctx, a.PatientID, a.DoctorID)
		if err != nil {
			return err
		}
		return s.notify(ctx, notification.TemplateAppointmentCancelled, a, p, d,
			map[string]string{"reason": "appointment removed by the hospital"})
	})
}

// Get returns the populated appointment if actor may see it.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id uuid.UUID) (*View, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(actor, a); err != nil {
		return nil, err
	}
	p, d, err := s.parties(ctx, a.PatientID, a.DoctorID)
	if err != nil {
		return nil, err
	}
	return newView(a, p, d), nil
}

// List returns populated appointments. Patients and doctors only see their
// own.
func (s *Service) List(ctx context.Context, actor auth.Principal, f Filter, limit, offset int) ([]*View, int, error) {
	switch actor.Role {
	case auth.RolePatient, auth.RoleDoctor:
		self, err := actor.ProfileID()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrForbidden, err)
		}
		if actor.Role == auth.RolePatient {
			f.PatientID = &self
		} else {
			f.DoctorID = &self
		}
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	patients := make(map[uuid.UUID]*identity.Patient)
	doctors := make(map[uuid.UUID]*identity.Doctor)
	views := make([]*View, 0, len(items))
	for _, a := range items {
		p, ok := patients[a.PatientID]
		if !ok {
			if p, err = s.directory.GetPatient(ctx, a.PatientID); err != nil && !errors.Is(err, identity.ErrNotFound) {
				return nil, 0, err
			}
			patients[a.PatientID] = p
		}
		d, ok := doctors[a.DoctorID]
		if !ok {
			if d, err = s.directory.GetDoctor(ctx, a.DoctorID); err != nil && !errors.Is(err, identity.ErrNotFound) {
				return nil, 0, err
			}
			doctors[a.DoctorID] = d
		}
		views = append(views, newView(a, p, d))
	}
	return views, total, nil
}

// Availability lists the doctor's free half-hour slots on date. Slots that
// already started are not offered.
func (s *Service) Availability(ctx context.Context, doctorID uuid.UUID, date string) (*Availability, error) {
	day, err := validDate(date)
	if err != nil {
		return nil, err
	}
	d, err := s.doctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	out := &Availability{DoctorID: doctorID, Date: date, Slots: []string{}, Booked: []string{}}
	taken, err := s.repo.TakenSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if taken != nil {
		out.Booked = taken
	}
	if !d.Active || !d.WorksOn(day) {
		return out, nil
	}
	out.Working = true

	slots, err := d.Slots()
	if err != nil {
		return nil, fmt.Errorf("%w: Dr. %s's schedule is unusable: %v", ErrDoctorUnavailable, d.Name, err)
	}
	held := make(map[string]bool, len(taken))
	for _, t := range taken {
		held[t] = true
	}
	now := s.now()
	for _, slot := range slots {
		if held[slot] {
			continue
		}
		if start, err := slotStart(date, slot, s.loc); err != nil || !start.After(now) {
			continue
		}
		out.Slots = append(out.Slots, slot)
	}
	return out, nil
}

// LookupVisit resolves an appointment for prescriptions.
func (s *Service) LookupVisit(ctx context.Context, id uuid.UUID) (prescription.Visit, error) {
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return prescription.Visit{}, prescription.ErrAppointmentNotFound
	}
	if err != nil {
		return prescription.Visit{}, err
	}
	return prescription.Visit{PatientID: a.PatientID, DoctorID: a.DoctorID, Status: string(a.Status)}, nil
}
