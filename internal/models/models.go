package models

import (
	"fmt"
	"time"
)

// Section names used by the fleet; "main" is the robot body, "car" the trolley.
const (
	SectionMain = "main"
	SectionCar  = "car"
)

// Viewer roles. Everything that is not RoleUser is privileged.
const (
	RoleUser      = "user"
	RoleAdmin     = "admin"
	RoleDashboard = "dashboard"
)

// Notification types.
const (
	TypeInfo  = "info"
	TypeAlert = "alert"
)

// LowVoltageThreshold is the volt level below which an alert fires.
const LowVoltageThreshold = 15

// ActiveButton is one operator button configured on a section.
type ActiveButton struct {
	ID      ID     `json:"id,omitempty"`
	Name    string `json:"Name"`
	Color   string `json:"Color,omitempty"`
	Command string `json:"Command,omitempty"`
}

// Section is one subsystem of a robot with its own broker credentials,
// topic pair and latest known telemetry.
type Section struct {
	Voltage        int            `json:"Voltage"`
	Cycles         Cycles         `json:"Cycles"`
	Status         string         `json:"Status"`
	ActiveBtns     []ActiveButton `json:"ActiveBtns,omitempty"`
	TopicSubscribe string         `json:"Topic_subscribe"`
	TopicMain      string         `json:"Topic_main"`
	MqttURL        string         `json:"mqttUrl"`
	MqttUsername   string         `json:"mqttUsername"`
	MqttPassword   string         `json:"mqttPassword"`
}

// HasCredentials reports whether the section is eligible for a live broker
/// connection: host, both credentials and both topics must be present.
func (s *Section) HasCredentials() bool {
	return s.MqttURL != "" && s.MqttUsername != "" && s.MqttPassword != "" &&
		s.TopicSubscribe != "" && s.TopicMain != ""
}

// Robot is one fleet member as served by the robots endpoint.
type Robot struct {
	ID        ID                  `json:"id"`
	RobotName string              `json:"RobotName"`
	ProjectID ID                  `json:"projectId"`
	IsTrolley bool                `json:"isTrolley"`
	Sections  map[string]*Section `json:"Sections"`
}

// Clone deep-copies the robot so a caller can stage a field change without
// mutating the shared snapshot.
func (r *Robot) Clone() *Robot {
	if r == nil {
		return nil
	}
	out := *r
	out.Sections = make(map[string]*Section, len(r.Sections))
	for name, section := range r.Sections {
		if section == nil {
			out.Sections[name] = nil
			continue
		}
		sc := *section
		if section.ActiveBtns != nil {
			sc.ActiveBtns = make([]ActiveButton, len(section.ActiveBtns))
			copy(sc.ActiveBtns, section.ActiveBtns)
		}
		out.Sections[name] = &sc
	}
	return &out
}

// Project as served by the projects endpoint.
type Project struct {
	ID          ID     `json:"id"`
	ProjectID   ID     `json:"projectId,omitempty"`
	ProjectName string `json:"ProjectName"`
}

// EffectiveID returns whichever of the two id fields the backend populated.
func (p *Project) EffectiveID() ID {
	if !p.ID.IsZero() {
		return p.ID
	}
	return p.ProjectID
}

// User as served by the users endpoint.
type User struct {
	ID          ID     `json:"id,omitempty"`
	UserName    string `json:"UserName,omitempty"`
	Email       string `json:"Email"`
	ProjectName string `json:"ProjectName"`
}

// Notification is the persisted record shape shared by the notifications
// and logs endpoints.
type Notification struct {
	TopicMain   string `json:"topic_main"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	RobotID     ID     `json:"RobotId"`
	RobotName   string `json:"robotName,omitempty"`
	SectionName string `json:"sectionName,omitempty"`
	Voltage     *int   `json:"voltage,omitempty"`
	Direction   string `json:"direction,omitempty"`
}

// FeedEntry is a notification as held in the in-memory feed, enriched with
// display fields the persisted record does not carry.
type FeedEntry struct {
	Notification
	NotificationID string    `json:"notificationId"`
	Timestamp      time.Time `json:"timestamp"`
	IsAlert        bool      `json:"isAlert"`
	Source         string    `json:"source"`
	DisplayMessage string    `json:"displayMessage"`
}

// DisplayName builds the "<robot> (<section>): <message>" feed line, with
// fallbacks when resolution failed.
func (n *Notification) DisplayName() string {
	robot := n.RobotName
	if robot == "" {
		robot = "Unknown Robot"
	}
	section := n.SectionName
	if section == "" {
		section = "Unknown Section"
	}
	return fmt.Sprintf("%s (%s): %s", robot, section, n.Message)
}

// StampNow fills date and time from the wall clock in the backend's
// ISO-derived format.
func (n *Notification) StampNow(now time.Time) {
	iso := now.UTC().Format("2006-01-02T15:04:05")
	n.Date = iso[:10]
	n.Time = iso[11:19]
}
