package web

import "embed"

// TemplatesFS holds the page and the chart fragment.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the htmx event listeners.
//
//go:embed static/*
var StaticFS embed.FS
