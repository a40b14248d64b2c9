package prompts

// Library defines the interface for the complete prompt library.
type Library interface {
	Answer() AnswerPrompt
	Analyze() AnalyzePrompt
}

// LibraryImpl implements the Library interface.
type LibraryImpl struct {
	answer  AnswerPrompt
	analyze AnalyzePrompt
}

func (l *LibraryImpl) Answer() AnswerPrompt   { return l.answer }
func (l *LibraryImpl) Analyze() AnalyzePrompt { return l.analyze }

// NewLibrary creates a new prompt library instance.
func NewLibrary() Library {
	return &LibraryImpl{
		answer:  NewAnswerVersions(),
		analyze: NewAnalyzeVersions(),
	}
}

// DefaultLibrary is the default prompt library instance.
var DefaultLibrary = NewLibrary()
