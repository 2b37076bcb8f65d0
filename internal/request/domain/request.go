package domain

// Role is a recipient class of timeline notifications.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
	RoleWriter  Role = "writer"
)

// Roles lists every role in evaluation order.
var Roles = []Role{RoleAdmin, RoleStudent, RoleWriter}

const (
	fieldTitle             = "title"
	fieldDescription       = "description"
	fieldNotificationsSent = "notificationsSent"
)

// TimelineStep is one stage of a request. Fields the service does not model
// are kept so that writing the timeline back never drops them.
type TimelineStep struct {
	Title             string
	Description       string
	NotificationsSent map[Role]bool

	raw map[string]interface{}
}

// Pending reports whether the flag for role is explicitly false.
// A missing flag means the role is not tracked for this step.
func (s TimelineStep) Pending(role Role) bool {
	sent, ok := s.NotificationsSent[role]
	return ok && !sent
}

// Timeline is the ordered step list embedded in a request.
type Timeline []TimelineStep

// Clone returns a deep copy whose flags can be changed without touching t.
func (t Timeline) Clone() Timeline {
	if t == nil {
		return nil
	}
	out := make(Timeline, len(t))
	for i, s := range t {
		flags := make(map[Role]bool, len(s.NotificationsSent))
		for role, sent := range s.NotificationsSent {
			flags[role] = sent
		}
		s.NotificationsSent = flags
		s.raw = copyMap(s.raw)
		out[i] = s
	}
	return out
}

// ToData renders the timeline for storage.
func (t Timeline) ToData() []interface{} {
	out := make([]interface{}, 0, len(t))
	for _, s := range t {
		step := copyMap(s.raw)
		if step == nil {
			step = map[string]interface{}{
				fieldTitle:       s.Title,
				fieldDescription: s.Description,
			}
		}

		flags, _ := step[fieldNotificationsSent].(map[string]interface{})
		flags = copyMap(flags)
		if flags == nil {
			if len(s.NotificationsSent) == 0 {
				out = append(out, step)
				continue
			}
			flags = make(map[string]interface{}, len(s.NotificationsSent))
		}
		for role, sent := range s.NotificationsSent {
			flags[string(role)] = sent
		}
		step[fieldNotificationsSent] = flags

		out = append(out, step)
	}
	return out
}

// ParseTimeline reads a stored timeline. Entries that are not maps are skipped.
func ParseTimeline(v interface{}) Timeline {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}

	out := make(Timeline, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		step := TimelineStep{
			NotificationsSent: make(map[Role]bool),
			raw:               copyMap(m),
		}
		step.Title, _ = m[fieldTitle].(string)
		step.Description, _ = m[fieldDescription].(string)
		if flags, ok := m[fieldNotificationsSent].(map[string]interface{}); ok {
			for k, v := range flags {
				if sent, ok := v.(bool); ok {
					step.NotificationsSent[Role(k)] = sent
				}
			}
		}
		out = append(out, step)
	}
	return out
}

// Request is the subset of a request document the service reads.
type Request struct {
	ID               string
	StudentID        string
	AssignedWriterID string
	Timeline         Timeline
}

// FromData builds a Request from raw document data.
func FromData(id string, data map[string]interface{}) *Request {
	r := &Request{ID: id}
	r.StudentID, _ = data["studentId"].(string)
	r.AssignedWriterID, _ = data["assignedWriterId"].(string)
	r.Timeline = ParseTimeline(data["timeline"])
	return r
}

// RecipientFor returns the notification target of role, or "" when nobody holds it.
func (r *Request) RecipientFor(role Role) string {
	switch role {
	case RoleAdmin:
		return string(RoleAdmin)
	case RoleStudent:
		return r.StudentID
	case RoleWriter:
		return r.AssignedWriterID
	}
	return ""
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
