// This file defines chat messages and their status lifecycle.
// A message is created once and then only mutated by status transitions
// (sent -> delivered -> read); it is never deleted by this core.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindText         MessageKind = "text"
	KindImage        MessageKind = "image"
	KindFile         MessageKind = "file"
	KindPrescription MessageKind = "prescription"
)

func ParseMessageKind(s string) (MessageKind, bool) {
	switch MessageKind(s) {
	case KindText, KindImage, KindFile, KindPrescription:
		return MessageKind(s), true
	default:
		return "", false
	}
}

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Medicine is one line of a prescription payload.
type Medicine struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration"`
	Notes     string `json:"notes,omitempty"`
}

// Prescription is the structured payload carried by KindPrescription messages.
type Prescription struct {
	Medicines []Medicine `json:"medicines"`
	Notes     string     `json:"notes,omitempty"`
}

// Attachment references an uploaded file; upload itself is out of scope.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is the durable chat record exchanged between a doctor and a patient.
type Message struct {
	ID           uuid.UUID     `json:"id"`
	SenderID     string        `json:"sender_id"`
	RecipientID  string        `json:"recipient_id"`
	SenderRole   Role          `json:"sender_role"`
	Kind         MessageKind   `json:"kind"`
	Content      string        `json:"content"`
	Prescription *Prescription `json:"prescription,omitempty"`
	Attachments  []Attachment  `json:"attachments,omitempty"`
	Status       MessageStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	DeliveredAt  *time.Time    `json:"delivered_at,omitempty"`
	ReadAt       *time.Time    `json:"read_at,omitempty"`
}
