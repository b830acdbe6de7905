package models

// All lists every persisted model in dependency order for AutoMigrate.
func All() []interface{} {
	return []interface{}{&ProblemSet{}, &Sentence{}, &StudentSession{}, &Submission{}, &Answer{}}
}
