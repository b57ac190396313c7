// Package identity turns a noisy spoken introduction into a user name and
// optional numeric ID.
//
// Resolution is delegated to a language model through llm.Completer. The
// model answers in JSON, and older plain "Name:"/"ID:" replies are still
// accepted. Anything the parser cannot pin to a name is reported as unknown.
package identity
