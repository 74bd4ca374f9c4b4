// Package logging builds the logrus logger shared by every node
// component. Each component gets its own *logrus.Entry tagged with a
// "component" field rather than a separate logger instance, so a single
// level and output destination applies across a node's components.
package logging
