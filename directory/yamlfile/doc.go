// Package yamlfile implements goSession.Directory from a YAML file with
// users, their password hashes and role-based permission codes.
package yamlfile
