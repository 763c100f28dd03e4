package scene

// Command is the closed set of board mutations. The unexported marker keeps
// the set sealed so dispatch sites stay exhaustive type switches instead of
// open string matching.
type Command interface {
	isCommand()
}

// Add appends an element to the board. No id deduplication happens here; id
// uniqueness is a caller contract.
type Add struct {
	Element Element
}

// Update shallow-merges the non-nil patch fields into the element with the
// given id. Applying it with an unknown id is a no-op.
type Update struct {
	ID    string
	Patch Patch
}

// Remove drops the first element with the given id. Applying it with an
// unknown id is a no-op.
type Remove struct {
	ID string
}

// ReplaceAll swaps the whole board content for the given elements, order
// preserved. This is the transactional commit used when a verification run
// promotes its draft.
type ReplaceAll struct {
	Elements []Element
}

// ClearAll empties the board.
type ClearAll struct{}

func (Add) isCommand()        {}
func (Update) isCommand()     {}
func (Remove) isCommand()     {}
func (ReplaceAll) isCommand() {}
func (ClearAll) isCommand()   {}
