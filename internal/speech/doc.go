// Package speech transcribes short recorded introductions with Google Cloud
// Speech-to-Text so the transcript can be handed to identity resolution.
package speech
