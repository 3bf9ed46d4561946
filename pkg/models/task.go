package models

import gonanoid "github.com/matoous/go-nanoid/v2"

// nested entity ids are short nanoids; block and plan ids stay UUIDs.
const nestedIDLength = 12

// Task is one checklist item of an ACTION block.
type Task struct {
	ID        string `json:"id"        validate:"required"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// NewTask creates an empty, uncompleted task.
func NewTask() *Task {
	return &Task{ID: gonanoid.Must(nestedIDLength)}
}

// Option is one outcome of a CONDITION block: the observed result and the
// decision it leads to. Both are free text for the clinician.
type Option struct {
	ID       string `json:"id"       validate:"required"`
	Resultat string `json:"resultat"`
	Decision string `json:"decision"`
}

// NewOption creates a blank option.
func NewOption() *Option {
	return &Option{ID: gonanoid.Must(nestedIDLength)}
}
