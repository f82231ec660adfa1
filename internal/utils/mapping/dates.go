package mapping

import (
	"time"

	"cloud.google.com/go/civil"
)

// DateToTime stores a calendar date as midnight UTC.
func DateToTime(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// TimeToDate reads a calendar date back. The stored instant is interpreted in UTC.
func TimeToDate(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}

// DatePtrToTime is DateToTime for optional dates.
func DatePtrToTime(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := DateToTime(*d)
	return &t
}

// TimePtrToDate is TimeToDate for optional dates.
func TimePtrToDate(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := TimeToDate(*t)
	return &d
}
