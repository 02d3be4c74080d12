// Package context holds the application context passed into commands.
//
// It is a separate package only to break the import cycle between app and
// cli; conceptually these types belong to the app package.
package context
