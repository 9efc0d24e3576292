package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gtasite/api/geo"
	"gtasite/api/models"
)

// In-memory fakes for the storage collaborators. They mirror the
// semantics the interfaces promise: merge upserts, set-if-absent doc
// creation, relative increments.

type fakeDeviceStore struct {
	mu         sync.Mutex
	upserts    int
	activities int
	records    map[string]models.Session
	failUpsert bool
}

func newFakeDeviceStore() *fakeDeviceStore {
	return &fakeDeviceStore{records: map[string]models.Session{}}
}

func (f *fakeDeviceStore) UpsertSession(ctx context.Context, sess *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return errors.New("device store unavailable")
	}
	f.upserts++
	existing, ok := f.records[sess.DeviceID]
	if !ok {
		f.records[sess.DeviceID] = *sess
		return nil
	}
	existing.SessionID = sess.SessionID
	existing.SessionCount++
	existing.LastVisit = sess.LastVisit
	existing.IsConverted = existing.IsConverted || sess.IsConverted
	f.records[sess.DeviceID] = existing
	sess.SessionCount = existing.SessionCount
	return nil
}

func (f *fakeDeviceStore) UpdateActivity(ctx context.Context, sess *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities++
	if existing, ok := f.records[sess.DeviceID]; ok {
		existing.TotalPageViews = sess.TotalPageViews
		existing.TotalTimeSpent = sess.TotalTimeSpent
		existing.ConversionEvents = sess.ConversionEvents
		existing.IsConverted = existing.IsConverted || sess.IsConverted
		f.records[sess.DeviceID] = existing
	}
	return nil
}

func (f *fakeDeviceStore) SetUserEmail(ctx context.Context, deviceID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.records[deviceID]; ok {
		existing.UserEmail = email
		f.records[deviceID] = existing
	}
	return nil
}

type fakeEventStore struct {
	mu         sync.Mutex
	events     []models.Event
	failInsert bool
}

// InsertEvents mirrors the keyed-overwrite contract of the real event
// store: re-delivery under the same event id replaces the logical row
// instead of duplicating it.
func (f *fakeEventStore) InsertEvents(ctx context.Context, events []models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return errors.New("event store unavailable")
	}
	for _, e := range events {
		replaced := false
		for i := range f.events {
			if f.events[i].EventID == e.EventID {
				f.events[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			f.events = append(f.events, e)
		}
	}
	return nil
}

func (f *fakeEventStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeStatsStore struct {
	mu   sync.Mutex
	docs map[string]map[string]int64
}

func newFakeStatsStore() *fakeStatsStore {
	return &fakeStatsStore{docs: map[string]map[string]int64{}}
}

func (f *fakeStatsStore) EnsureDocs(ctx context.Context, date string, hour int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, hourly := range map[string]bool{date: false, dateHourKey(date, hour): true} {
		doc, ok := f.docs[key]
		if !ok {
			doc = map[string]int64{}
			f.docs[key] = doc
		}
		for field, v := range models.ZeroCounters(hourly) {
			if _, ok := doc[field]; !ok {
				doc[field] = v
			}
		}
	}
	return nil
}

func (f *fakeStatsStore) ApplyDelta(ctx context.Context, date string, hour int, delta map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range []string{date, dateHourKey(date, hour)} {
		doc, ok := f.docs[key]
		if !ok {
			return errors.New("document must exist before increments")
		}
		for field, n := range delta {
			doc[field] += n
		}
	}
	f.docs[dateHourKey(date, hour)][models.HourlyActivityField(hour)]++
	return nil
}

func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}

func dateHourKey(date string, hour int) string {
	return fmt.Sprintf("%s_%02d", date, hour)
}

func (f *fakeStatsStore) daily(date, field string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[date][field]
}

func (f *fakeStatsStore) hourly(date string, hour int, field string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[dateHourKey(date, hour)][field]
}

type fakeRegistrationStore struct {
	mu       sync.Mutex
	regs     []models.Registration
	failNext bool
}

func (f *fakeRegistrationStore) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return errors.New("registration store unavailable")
	}
	for _, existing := range f.regs {
		if existing.UserID == reg.UserID {
			return nil
		}
	}
	f.regs = append(f.regs, *reg)
	return nil
}

type fakeIdentity struct {
	mu         sync.Mutex
	emails     map[string]string
	submitted  map[string][]string
	lastSubmit map[string]time.Time
	minted     int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		emails:     map[string]string{},
		submitted:  map[string][]string{},
		lastSubmit: map[string]time.Time{},
	}
}

func (f *fakeIdentity) GetOrCreateDeviceID(ctx context.Context, existing string) (string, bool) {
	if existing != "" {
		return existing, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minted++
	return "device_test", true
}

func (f *fakeIdentity) GetStoredEmail(ctx context.Context, deviceID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.emails[deviceID]
	return email, ok
}

func (f *fakeIdentity) StoreEmailCorrelation(ctx context.Context, deviceID, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails[deviceID] = email
}

func (f *fakeIdentity) SubmittedEmails(ctx context.Context, deviceID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted[deviceID]...)
}

func (f *fakeIdentity) MarkEmailSubmitted(ctx context.Context, deviceID, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.submitted[deviceID] {
		if e == email {
			return
		}
	}
	f.submitted[deviceID] = append(f.submitted[deviceID], email)
}

func (f *fakeIdentity) LastSubmission(ctx context.Context, deviceID string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.lastSubmit[deviceID]
	return t, ok
}

func (f *fakeIdentity) StampSubmission(ctx context.Context, deviceID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSubmit[deviceID] = at
}

func (f *fakeIdentity) ClearRateLimit(ctx context.Context, deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lastSubmit, deviceID)
}

func (f *fakeIdentity) ClearSubmittedEmails(ctx context.Context, deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.submitted, deviceID)
}

type fakeGeo struct {
	result geo.Result
	calls  int
}

func newFakeGeo() *fakeGeo {
	return &fakeGeo{result: geo.Result{
		IPAddress: "203.0.113.7",
		Location:  models.IPLocation{Country: "Germany", City: "Berlin"},
	}}
}

func (f *fakeGeo) Resolve(ctx context.Context, hintIP string) geo.Result {
	f.calls++
	return f.result
}
