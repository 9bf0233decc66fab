// Packages lib acts as a library for modules that do not fit
// strictly into other layers.
//
// It contains the background job processing for queued model
// tasks (using Redis/Asynq) and the cron sweeper that re-submits
// lost task submissions.
package lib
