package types

// CandidateInHistory 候选人的历史统计，只追加不删除
type CandidateInHistory struct {
	PublicKey                 string   `json:"public_key"`
	ProducedBlocks            int64    `json:"produced_blocks"`
	MissedTimeSlots           int64    `json:"missed_time_slots"`
	Terms                     []uint64 `json:"terms"`
	ContinualAppointmentCount int64    `json:"continual_appointment_count"`
	ReappointmentCount        int64    `json:"reappointment_count"`
	CurrentAlias              string   `json:"current_alias"`
	IsEvilNode                bool     `json:"is_evil_node"`
}

func (h *CandidateInHistory) Copy() *CandidateInHistory {
	if h == nil {
		return nil
	}
	c := *h
	c.Terms = append([]uint64(nil), h.Terms...)
	return &c
}

func (h *CandidateInHistory) HasTerm(term uint64) bool {
	for _, t := range h.Terms {
		if t == term {
			return true
		}
	}
	return false
}

// Tickets 候选人得到的选票总数
type Tickets struct {
	PublicKey       string `json:"public_key"`
	ObtainedTickets int64  `json:"obtained_tickets"`
}
