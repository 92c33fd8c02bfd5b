package queue

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxMileageKm = 2_000_000
	maxNotes     = 1000
)

var plateShape = regexp.MustCompile(`^[A-Z0-9]{5,8}$`)

// NormalizePlate upper-cases a plate and drops spaces and dashes.
func NormalizePlate(p string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return unicode.ToUpper(r)
	}, strings.TrimSpace(p))
}

// Validate checks a join request and returns its normalized form. It fails on
// the first problem and never touches any store.
func Validate(d JoinData) (JoinData, error) {
	d.CustomerID = strings.TrimSpace(d.CustomerID)
	if d.CustomerID == "" {
		return JoinData{}, invalid("customerId", "required")
	}
	if !d.ServiceType.Valid() {
		return JoinData{}, invalid("serviceType", "unknown service type "+string(d.ServiceType))
	}
	if d.Plate != "" {
		d.Plate = NormalizePlate(d.Plate)
		if !validPlate(d.Plate) {
			return JoinData{}, invalid("plate", "does not look like a license plate")
		}
	}
	if d.MileageKm != nil {
		km := *d.MileageKm
		if math.IsNaN(km) || math.IsInf(km, 0) || km < 0 || km > maxMileageKm {
			return JoinData{}, invalid("mileageKm", "must be between 0 and 2000000")
		}
	}
	d.Notes = strings.TrimSpace(d.Notes)
	if utf8.RuneCountInString(d.Notes) > maxNotes {
		return JoinData{}, invalid("notes", "too long")
	}
	if err := validateDetails(d.ServiceType, d.Details); err != nil {
		return JoinData{}, err
	}
	d.MotorcycleID = strings.TrimSpace(d.MotorcycleID)
	d.SessionID = strings.TrimSpace(d.SessionID)
	return d, nil
}

func validPlate(p string) bool {
	if !plateShape.MatchString(p) {
		return false
	}
	letter := strings.IndexFunc(p, unicode.IsLetter) >= 0
	digit := strings.IndexFunc(p, unicode.IsDigit) >= 0
	return letter && digit
}

func validateDetails(t ServiceType, d Details) error {
	if d.variants() > 1 {
		return invalid("details", "more than one variant set")
	}
	switch {
	case d.Appointment != nil && t != ServiceAppointment,
		d.WorkOrder != nil && t != ServiceDirectWorkOrder,
		d.Inquiry != nil && t != ServiceInquiry:
		return invalid("details", "does not match service type "+string(t))
	}
	if d.WorkOrder != nil {
		for _, s := range d.WorkOrder.RequestedServices {
			if strings.TrimSpace(s) == "" {
				return invalid("details.workOrder.requestedServices", "empty service name")
			}
		}
	}
	return nil
}
