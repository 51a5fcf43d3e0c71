// Package app wires the evaluation engine into a runnable application:
// configuration, logging, the extraction client, and a one-shot evaluation
// run driven by the session controller.
package app
