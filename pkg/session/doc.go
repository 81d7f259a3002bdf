// Package session keeps a configuration document's text and structured
// forms in step.
//
// A Session applies edits from either side synchronously. ApplyTextEdit
// decodes the new text; when that fails the text is still kept so the
// user loses no keystrokes, but the structured value stays at its last
// valid state and the failure is returned as data in the Result.
// ApplyStructuredEdit regenerates the text in schema order.
//
// Applied edits are persisted through a stores.Store after a trailing
// debounce delay. Bursts of edits collapse into one write, at most one
// write is in flight, and a failed write is reported to the Notifier
// without rolling back the document. Close cancels any pending write.
//
//	s, err := session.Open(ctx, stores.NewFileStore(""), session.WithTelemetry(tel))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	res := s.ApplyTextEdit(ctx, text)
//	if !res.OK() {
//		for _, fe := range res.Errors {
//			fmt.Println(fe)
//		}
//	}
package session
