package tickets

func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusAssigned:
		return "Assigned"
	case StatusInProgress:
		return "In Progress"
	case StatusResolved:
		return "Resolved"
	case StatusReopened:
		return "Reopened"
	case StatusClosed:
		return "Closed"
	default:
		return string(s)
	}
}

func (p Priority) Label() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return string(p)
	}
}

func (t Team) Label() string {
	switch t {
	case TeamSupport:
		return "Support"
	case TeamDevelopment:
		return "Development"
	default:
		return string(t)
	}
}

func (t Type) Label() string {
	switch t {
	case TypeBug:
		return "Bug"
	case TypeFeatureRequest:
		return "Feature Request"
	case TypeAssistance:
		return "Assistance"
	case TypeIncident:
		return "Incident"
	case TypeReclamation:
		return "Reclamation"
	case TypeRelance:
		return "Follow-up"
	default:
		return string(t)
	}
}

// IsActive reports tickets still awaiting resolution
func (s Status) IsActive() bool {
	switch s {
	case StatusOpen, StatusAssigned, StatusInProgress, StatusReopened:
		return true
	default:
		return false
	}
}
