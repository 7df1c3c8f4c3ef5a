package notebook

import "context"

// Notebook tracks a document together with its staleness.
type Notebook struct {
	Doc *Document
	// ExecutionNeeded is set when cached outputs may be stale.
	ExecutionNeeded bool
}

// Wrap returns a Notebook for doc.
func Wrap(doc *Document) *Notebook {
	return &Notebook{Doc: doc}
}

// SetExecutionNeeded marks the outputs as stale.
func (n *Notebook) SetExecutionNeeded() {
	n.ExecutionNeeded = true
}

// AddCell appends a code cell tagged identifier and marks the notebook stale.
func (n *Notebook) AddCell(identifier, source string) {
	n.Doc.Cells = append(n.Doc.Cells, NewCodeCell(identifier, source))
	n.SetExecutionNeeded()
}

// Equal compares the documents of n and other.
func (n *Notebook) Equal(other *Notebook) bool {
	return Equal(n.Doc, other.Doc)
}

// Execute runs every cell through exec and clears ExecutionNeeded on success.
func (n *Notebook) Execute(ctx context.Context, exec Executor) error {
	if err := exec.Execute(ctx, n.Doc); err != nil {
		return err
	}
	n.ExecutionNeeded = false
	return nil
}
