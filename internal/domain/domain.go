// Package domain holds the records shared by the dashboard, the REST API and
// the worker.
package domain

import "time"

// Subscriber is one participant row of a sheet. FilingNumber is unique within
// a sheet and identifies the row.
type Subscriber struct {
	FilingNumber           int64  `json:"filingNumber"`
	SubscriberCode         string `json:"subscriberCode"`
	Name                   string `json:"name"`
	IDNumber               string `json:"idNumber"`
	Yeshiva                string `json:"yeshiva"`
	Locality               string `json:"locality"`
	NumberOfWins           int    `json:"numberOfWins"`
	ScholarshipFund        int    `json:"scholarshipFund"`
	ParashaAnswersCode     string `json:"parashaAnswersCode"`
	YiunHalacha            bool   `json:"yiunHalacha"`
	YiunHalachaAnswersCode string `json:"yiunHalachaAnswersCode"`
	AnswersText            string `json:"answersText"`
}

// SubscriberKey returns the filing number of s.
func SubscriberKey(s Subscriber) int64 {
	return s.FilingNumber
}

// MergeSubscriber copies the editable fields of patch onto current. Identity
// and directory fields are never touched by an inline edit.
func MergeSubscriber(current, patch Subscriber) Subscriber {
	current.NumberOfWins = patch.NumberOfWins
	current.ScholarshipFund = patch.ScholarshipFund
	current.ParashaAnswersCode = patch.ParashaAnswersCode
	current.YiunHalacha = patch.YiunHalacha
	current.YiunHalachaAnswersCode = patch.YiunHalachaAnswersCode
	current.AnswersText = patch.AnswersText
	return current
}

// DirectoryEntry is a person found by the subscriber lookup.
type DirectoryEntry struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	IDNumber string `json:"idNumber"`
	Yeshiva  string `json:"yeshiva"`
	Locality string `json:"locality"`
}

// Sheet is one periodic publication issue.
type Sheet struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Number          string `json:"number"`
	Parasha         string `json:"parasha"`
	SubscriberCount int    `json:"subscriberCount"`
}

// Stats summarises the dashboard counters.
type Stats struct {
	TotalSheets      int     `json:"totalSheets"`
	TotalSubscribers int     `json:"totalSubscribers"`
	ActiveSheets     int     `json:"activeSheets"`
	MonthlyGrowth    float64 `json:"monthlyGrowth"`
}

// ActivityType enumerates recent activity kinds.
type ActivityType string

const (
	ActivitySheetCreated      ActivityType = "sheet_created"
	ActivitySubscriberAdded   ActivityType = "subscriber_added"
	ActivitySubscriberUpdated ActivityType = "subscriber_updated"
	ActivitySubscriberDeleted ActivityType = "subscriber_deleted"
)

// Activity is one entry of the recent activity feed.
type Activity struct {
	ID          int64        `json:"id"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	Timestamp   time.Time    `json:"timestamp"`
	SheetName   string       `json:"sheetName,omitempty"`
}

// User is the account returned by a successful login.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}
