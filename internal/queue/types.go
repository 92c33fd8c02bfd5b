package queue

import "time"

// Status is the lifecycle state of an Entry.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCalled    Status = "called"
	StatusServed    Status = "served"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusWaiting, StatusCalled, StatusServed, StatusExpired, StatusCancelled}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusServed || s == StatusExpired || s == StatusCancelled
}

// Active reports whether the entry still occupies a place in the queue.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusCalled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusServed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// ServiceType is the reason a customer joined the queue.
type ServiceType string

const (
	ServiceAppointment     ServiceType = "appointment"
	ServiceDirectWorkOrder ServiceType = "direct_work_order"
	ServiceInquiry         ServiceType = "inquiry"
)

// ServiceTypes lists the closed set of accepted service types.
var ServiceTypes = []ServiceType{ServiceAppointment, ServiceDirectWorkOrder, ServiceInquiry}

// Valid reports whether t belongs to the closed set.
func (t ServiceType) Valid() bool {
	for _, st := range ServiceTypes {
		if t == st {
			return true
		}
	}
	return false
}

// AppointmentDetails accompanies ServiceAppointment.
type AppointmentDetails struct {
	AppointmentID string     `json:"appointmentId,omitempty"`
	ScheduledFor  *time.Time `json:"scheduledFor,omitempty"`
}

// WorkOrderDetails accompanies ServiceDirectWorkOrder.
type WorkOrderDetails struct {
	RequestedServices []string `json:"requestedServices,omitempty"`
	Symptoms          string   `json:"symptoms,omitempty"`
}

// InquiryDetails accompanies ServiceInquiry.
type InquiryDetails struct {
	Topic string `json:"topic,omitempty"`
}

// Details holds the variant matching the entry's ServiceType. At most one
// field is set.
type Details struct {
	Appointment *AppointmentDetails `json:"appointment,omitempty"`
	WorkOrder   *WorkOrderDetails   `json:"workOrder,omitempty"`
	Inquiry     *InquiryDetails     `json:"inquiry,omitempty"`
}

func (d Details) variants() int {
	n := 0
	if d.Appointment != nil {
		n++
	}
	if d.WorkOrder != nil {
		n++
	}
	if d.Inquiry != nil {
		n++
	}
	return n
}

// JoinData is the caller-supplied request to join the queue.
type JoinData struct {
	CustomerID   string      `json:"customerId"`
	ServiceType  ServiceType `json:"serviceType"`
	MotorcycleID string      `json:"motorcycleId,omitempty"`
	Plate        string      `json:"plate,omitempty"`
	MileageKm    *float64    `json:"mileageKm,omitempty"`
	Notes        string      `json:"notes,omitempty"`
	Details      Details     `json:"details,omitempty"`
	// SessionID, when set, gates the join on an unused QueueSession.
	SessionID string `json:"sessionId,omitempty"`
}

// Entry is a ticket in the walk-in queue.
type Entry struct {
	ID               string      `json:"id"`
	CustomerID       string      `json:"customerId"`
	ServiceType      ServiceType `json:"serviceType"`
	MotorcycleID     string      `json:"motorcycleId,omitempty"`
	Plate            string      `json:"plate,omitempty"`
	MileageKm        *float64    `json:"mileageKm,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	Details          Details     `json:"details"`
	Status           Status      `json:"status"`
	Position         int64       `json:"position"`
	VerificationCode string      `json:"verificationCode"`
	AssignedTo       string      `json:"assignedTo,omitempty"`
	JoinedAt         time.Time   `json:"joinedAt"`
	CalledAt         *time.Time  `json:"calledAt,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
	ExpiresAt        time.Time   `json:"expiresAt"`
	SessionID        string      `json:"sessionId,omitempty"`
	RequeuedFrom     string      `json:"requeuedFrom,omitempty"`

	// EstimatedWaitMs is derived on read from the entries ahead; it is not
	// authoritative.
	EstimatedWaitMs int64 `json:"estimatedWaitMs,omitempty" cbor:"-"`
}

// ExpiredAt reports whether a waiting entry is past its expiry at now.
// Only waiting entries expire.
func (e Entry) ExpiredAt(now time.Time) bool {
	return e.Status == StatusWaiting && now.After(e.ExpiresAt)
}

// joinData reconstructs the request an entry was created from.
func (e Entry) joinData() JoinData {
	return JoinData{
		CustomerID:   e.CustomerID,
		ServiceType:  e.ServiceType,
		MotorcycleID: e.MotorcycleID,
		Plate:        e.Plate,
		MileageKm:    e.MileageKm,
		Notes:        e.Notes,
		Details:      e.Details,
	}
}

// Session gates ticket generation to one ticket per browsing session.
type Session struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
	IsActive           bool      `json:"isActive"`
	HasGeneratedTicket bool      `json:"hasGeneratedTicket"`
}

// Usable reports whether the session can still produce a ticket at now.
func (s Session) Usable(now time.Time) bool {
	return s.IsActive && !s.HasGeneratedTicket && !now.After(s.ExpiresAt)
}
