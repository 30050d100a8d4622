// Package tui is a terminal front end for live assessment surfaces. Each
// row is one resource; the selected row's input widget can be stepped and
// committed, and every row follows its resource definition's active method.
package tui
